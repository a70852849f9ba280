package manager

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/raad-downloader/raad/internal/engine"
	"github.com/raad-downloader/raad/internal/utils"
)

// Wire format of the session file. The schema version is monotone;
// readers tolerate unknown fields and default missing ones.

type sessionData struct {
	Version         int               `json:"version"`
	MaxConcurrent   int               `json:"maxConcurrent"`
	GlobalMaxSpeed  int64             `json:"globalMaxSpeed"`
	PauseOnBattery  bool              `json:"pauseOnBattery"`
	ResumeOnAC      bool              `json:"resumeOnAC"`
	Queues          []queueData       `json:"queues"`
	CategoryFolders map[string]string `json:"categoryFolders"`
	DomainRules     map[string]string `json:"domainRules"`
	Items           []itemData        `json:"items"`
}

type queueData struct {
	Name            string `json:"name"`
	MaxConcurrent   int    `json:"maxConcurrent"`
	MaxSpeed        int64  `json:"maxSpeed"`
	ScheduleEnabled bool   `json:"scheduleEnabled"`
	StartMinutes    int    `json:"startMinutes"`
	EndMinutes      int    `json:"endMinutes"`
	QuotaEnabled    bool   `json:"quotaEnabled"`
	QuotaBytes      int64  `json:"quotaBytes"`
	DownloadedToday int64  `json:"downloadedToday"`
	LastResetDate   string `json:"lastResetDate"`
}

type proxyData struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
}

type itemData struct {
	URL              string    `json:"url"`
	FilePath         string    `json:"filePath"`
	Segments         int       `json:"segments"`
	QueueName        string    `json:"queueName"`
	Category         string    `json:"category"`
	State            string    `json:"state"`
	TaskMaxSpeed     int64     `json:"taskMaxSpeed"`
	BytesReceived    int64     `json:"bytesReceived"`
	BytesTotal       int64     `json:"bytesTotal"`
	LastSpeed        int64     `json:"lastSpeed"`
	LastEta          int       `json:"lastEta"`
	PausedAt         int64     `json:"pausedAt"`
	PauseReason      string    `json:"pauseReason"`
	CompletedAt      int64     `json:"completedAt"`
	ETag             string    `json:"etag"`
	LastModified     string    `json:"lastModified"`
	ResumeWarning    string    `json:"resumeWarning"`
	Mirrors          []string  `json:"mirrors"`
	MirrorIndex      int       `json:"mirrorIndex"`
	ChecksumAlgo     string    `json:"checksumAlgo"`
	ChecksumExpected string    `json:"checksumExpected"`
	ChecksumActual   string    `json:"checksumActual"`
	ChecksumState    string    `json:"checksumState"`
	VerifyOnComplete bool      `json:"verifyOnComplete"`
	PostOpenFile     bool      `json:"postOpenFile"`
	PostRevealFolder bool      `json:"postRevealFolder"`
	PostExtract      bool      `json:"postExtract"`
	PostScript       string    `json:"postScript"`
	RetryMax         int       `json:"retryMax"`
	RetryDelaySec    int       `json:"retryDelaySec"`
	Headers          []string  `json:"headers"`
	CookieHeader     string    `json:"cookieHeader"`
	AuthUser         string    `json:"authUser"`
	AuthPassword     string    `json:"authPassword"`
	Proxy            proxyData `json:"proxy"`
}

// collectSession assembles the session blob; it is invoked by the
// debounced store at write time.
func (m *Manager) collectSession() ([]byte, error) {
	m.mu.Lock()
	data := sessionData{
		Version:         sessionVersion,
		MaxConcurrent:   m.maxConcurrent,
		GlobalMaxSpeed:  m.globalMaxSpeed,
		PauseOnBattery:  m.pauseOnBattery,
		ResumeOnAC:      m.resumeOnAC,
		CategoryFolders: copyMap(m.categoryFolders),
		DomainRules:     copyMap(m.domainRules),
	}
	for _, name := range m.queueOrder {
		info := m.queues[name]
		if info == nil {
			continue
		}
		data.Queues = append(data.Queues, queueData{
			Name:            info.Name,
			MaxConcurrent:   info.MaxConcurrent,
			MaxSpeed:        info.MaxSpeed,
			ScheduleEnabled: info.ScheduleEnabled,
			StartMinutes:    info.StartMinutes,
			EndMinutes:      info.EndMinutes,
			QuotaEnabled:    info.QuotaEnabled,
			QuotaBytes:      info.QuotaBytes,
			DownloadedToday: info.DownloadedToday,
			LastResetDate:   info.LastResetDate,
		})
	}
	tasks := append([]*engine.Task(nil), m.tasks...)
	metas := make(map[string]taskMeta, len(m.meta))
	for id, meta := range m.meta {
		metas[id] = *meta
	}
	defaultQueue := m.defaultQueueNameLocked()
	m.mu.Unlock()

	for _, task := range tasks {
		meta := metas[task.ID()]
		queueName := meta.queue
		if queueName == "" {
			queueName = defaultQueue
		}
		category := meta.category
		if category == "" {
			category = utils.DetectCategory(task.FilePath())
		}
		cs := task.Checksum()
		user, pass := task.BasicAuth()
		proxy := task.ProxyInfo()
		openFile, revealFolder, extract, script := task.PostActions()

		data.Items = append(data.Items, itemData{
			URL:              task.URL(),
			FilePath:         task.FilePath(),
			Segments:         task.Segments(),
			QueueName:        queueName,
			Category:         category,
			State:            task.StateString(),
			TaskMaxSpeed:     meta.maxSpeed,
			BytesReceived:    meta.received,
			BytesTotal:       meta.total,
			LastSpeed:        task.LastSpeed(),
			LastEta:          task.LastEta(),
			PausedAt:         task.PausedAt(),
			PauseReason:      task.PauseReason(),
			CompletedAt:      meta.completedAt,
			ETag:             task.ETag(),
			LastModified:     task.LastModified(),
			ResumeWarning:    task.ResumeWarning(),
			Mirrors:          task.Mirrors(),
			MirrorIndex:      task.MirrorIndex(),
			ChecksumAlgo:     cs.Algorithm,
			ChecksumExpected: cs.Expected,
			ChecksumActual:   cs.Actual,
			ChecksumState:    cs.State,
			VerifyOnComplete: task.VerifyOnComplete(),
			PostOpenFile:     openFile,
			PostRevealFolder: revealFolder,
			PostExtract:      extract,
			PostScript:       script,
			RetryMax:         task.RetryMax(),
			RetryDelaySec:    task.RetryDelaySec(),
			Headers:          task.CustomHeaders(),
			CookieHeader:     task.CookieHeader(),
			AuthUser:         user,
			AuthPassword:     pass,
			Proxy: proxyData{
				Host:     proxy.Host,
				Port:     proxy.Port,
				User:     proxy.User,
				Password: proxy.Password,
			},
		})
	}
	return json.MarshalIndent(data, "", "  ")
}

// loadSession restores queues, policies, and tasks from disk. Terminal
// and paused tasks are seeded into their states without starting; a
// GUID-named file is renamed to the URL's nicer name when that can be
// done safely on disk.
func (m *Manager) loadSession() {
	raw, err := m.store.Load()
	if err != nil || len(raw) == 0 {
		return
	}
	// Missing fields keep their defaults; unknown fields are ignored.
	data := sessionData{ResumeOnAC: true}
	if err := json.Unmarshal(raw, &data); err != nil {
		m.log.Warn().Err(err).Msg("session parse failed, starting empty")
		return
	}

	m.mu.Lock()
	m.restoreInProgress = true
	if data.MaxConcurrent > 0 {
		m.maxConcurrent = data.MaxConcurrent
	}
	if data.GlobalMaxSpeed > 0 {
		m.globalMaxSpeed = data.GlobalMaxSpeed
	}
	m.pauseOnBattery = data.PauseOnBattery
	m.resumeOnAC = data.ResumeOnAC

	if len(data.Queues) > 0 {
		m.queues = make(map[string]*QueueInfo)
		m.queueOrder = nil
		for _, q := range data.Queues {
			if q.Name == "" {
				continue
			}
			info := &QueueInfo{
				Name:            q.Name,
				MaxConcurrent:   q.MaxConcurrent,
				MaxSpeed:        q.MaxSpeed,
				ScheduleEnabled: q.ScheduleEnabled,
				StartMinutes:    clampMinutes(q.StartMinutes),
				EndMinutes:      clampMinutes(q.EndMinutes),
				QuotaEnabled:    q.QuotaEnabled,
				QuotaBytes:      q.QuotaBytes,
				DownloadedToday: q.DownloadedToday,
				LastResetDate:   q.LastResetDate,
			}
			if info.MaxConcurrent <= 0 {
				info.MaxConcurrent = m.maxConcurrent
			}
			if info.LastResetDate == "" {
				info.LastResetDate = todayISO()
			}
			m.queues[q.Name] = info
			m.queueOrder = append(m.queueOrder, q.Name)
		}
	}
	for k, v := range data.CategoryFolders {
		if k != "" && v != "" {
			m.categoryFolders[k] = v
		}
	}
	for k, v := range data.DomainRules {
		key := utils.NormalizeHost(k)
		if key != "" && v != "" {
			m.domainRules[key] = v
		}
	}
	m.mu.Unlock()
	m.ensureDefaultQueue()

	for _, item := range data.Items {
		m.restoreItem(item)
	}

	m.mu.Lock()
	m.restoreInProgress = false
	m.mu.Unlock()
	m.updateTotals()
}

// restoreItem rebuilds one task from its persisted fields.
func (m *Manager) restoreItem(item itemData) {
	if item.URL == "" || item.FilePath == "" {
		return
	}
	segments := item.Segments
	if segments <= 0 {
		segments = 8
	}
	queueName := item.QueueName
	if queueName == "" {
		queueName = m.DefaultQueueName()
	}
	category := item.Category
	if category == "" {
		category = utils.DetectCategory(item.FilePath)
	}

	filePath := m.restoreNiceName(item.URL, item.FilePath, segments)

	m.mu.Lock()
	m.createQueueLocked(queueName)
	m.mu.Unlock()

	task := m.createTask(item.URL, filePath, queueName, category, segments)
	mirrors := item.Mirrors
	if len(mirrors) == 0 {
		mirrors = []string{item.URL}
	}
	task.SetMirrors(mirrors)
	if item.MirrorIndex > 0 && item.MirrorIndex < len(mirrors) {
		for i := 0; i < item.MirrorIndex; i++ {
			task.AdvanceMirror()
		}
	}
	task.ApplyOptions(engine.Options{
		ChecksumAlgorithm: item.ChecksumAlgo,
		ChecksumExpected:  item.ChecksumExpected,
		VerifyOnComplete:  item.VerifyOnComplete,
		Headers:           item.Headers,
		CookieHeader:      item.CookieHeader,
		AuthUser:          item.AuthUser,
		AuthPassword:      item.AuthPassword,
		Proxy: engine.Proxy{
			Host:     item.Proxy.Host,
			Port:     item.Proxy.Port,
			User:     item.Proxy.User,
			Password: item.Proxy.Password,
		},
		RetryMax:         item.RetryMax,
		RetryDelaySec:    item.RetryDelaySec,
		PostOpenFile:     item.PostOpenFile,
		PostRevealFolder: item.PostRevealFolder,
		PostExtract:      item.PostExtract,
		PostScript:       item.PostScript,
	})
	if item.ChecksumActual != "" {
		task.SetChecksumActual(item.ChecksumActual)
	}
	if item.ChecksumState != "" {
		task.SetChecksumState(item.ChecksumState)
	}
	// AdvanceMirror clears validators; restore them afterwards.
	task.SetResumeInfo(item.ETag, item.LastModified)
	if item.ResumeWarning != "" {
		task.SetResumeWarning(item.ResumeWarning)
	}

	if item.TaskMaxSpeed > 0 {
		m.mu.Lock()
		if meta := m.meta[task.ID()]; meta != nil {
			meta.maxSpeed = item.TaskMaxSpeed
		}
		m.mu.Unlock()
		m.applyTaskSpeed(task)
	}

	switch item.State {
	case "Paused":
		task.MarkPaused()
	case "Error":
		task.MarkError()
	case "Done":
		task.MarkDone()
	case "Canceled":
		task.MarkCanceled()
	}

	received := item.BytesReceived
	if received <= 0 {
		received = utils.BytesReceivedOnDisk(filePath, segments)
	}
	pausedAt := int64(0)
	if item.State == "Paused" {
		pausedAt = item.PausedAt
	}
	task.SeedPersistedStats(item.LastSpeed, item.LastEta, pausedAt, item.PauseReason)

	m.mu.Lock()
	if meta := m.meta[task.ID()]; meta != nil {
		meta.received = received
		meta.lastReceived = received
		meta.total = item.BytesTotal
		meta.completedAt = item.CompletedAt
	}
	m.mu.Unlock()

	m.model.SetProgress(task.ID(), received, item.BytesTotal)
	m.model.SetStatus(task.ID(), task.StateString(),
		item.State == "Done" || item.State == "Canceled" || item.State == "Error")
}

// restoreNiceName renames a GUID-named file (and its part siblings) to
// the URL's implied name when that is safe; when nothing exists on disk
// yet, the nicer name is simply preferred for future writes.
func (m *Manager) restoreNiceName(rawurl, filePath string, segments int) string {
	base := filepath.Base(filePath)
	nice := utils.FileNameFromURL(rawurl)
	if nice == "" || !utils.LooksLikeGUIDName(base) {
		return filePath
	}
	newPath := filepath.Join(filepath.Dir(filePath), nice)

	switched := false
	if utils.FileOrDirExists(filePath) && !utils.FileOrDirExists(newPath) {
		if os.Rename(filePath, newPath) == nil {
			switched = true
		}
	}
	anyOldParts := false
	for i := 0; i < segments; i++ {
		oldPart := fmt.Sprintf("%s.part%d", filePath, i)
		if !utils.FileOrDirExists(oldPart) {
			continue
		}
		anyOldParts = true
		newPart := fmt.Sprintf("%s.part%d", newPath, i)
		if utils.FileOrDirExists(newPart) {
			continue
		}
		if os.Rename(oldPart, newPart) == nil {
			switched = true
		}
	}
	if !switched && !utils.FileOrDirExists(filePath) && !anyOldParts {
		switched = true
	}
	if switched {
		return newPath
	}
	return filePath // rename deferred; keep the on-disk name
}

func copyMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
