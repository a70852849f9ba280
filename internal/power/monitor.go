// Package power answers one question: is the machine on battery right now?
package power

import (
	"bytes"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// Source is the polled battery probe. The manager asks it once a minute.
type Source interface {
	OnBattery(fallback bool) bool
}

// Monitor probes the platform power supply. The zero value is usable.
type Monitor struct{}

// OnBattery reports whether the machine currently runs on battery.
// When the platform gives no answer, fallback (the last known state) is
// returned so a flaky probe never flaps the policy.
func (Monitor) OnBattery(fallback bool) bool {
	switch runtime.GOOS {
	case "linux":
		return linuxOnBattery(fallback)
	case "darwin":
		return darwinOnBattery(fallback)
	}
	return fallback
}

func linuxOnBattery(fallback bool) bool {
	// sysfs first; AC adapters show up under a handful of names.
	for _, name := range []string{"AC", "ACAD", "AC0", "ADP1"} {
		data, err := os.ReadFile("/sys/class/power_supply/" + name + "/online")
		if err != nil {
			continue
		}
		switch string(bytes.TrimSpace(data)) {
		case "1":
			return false
		case "0":
			return true
		}
	}

	out, err := runWithTimeout("upower", "-i", "/org/freedesktop/UPower/devices/line_power_AC")
	if err == nil {
		lower := strings.ToLower(out)
		if strings.Contains(lower, "online: yes") {
			return false
		}
		if strings.Contains(lower, "online: no") {
			return true
		}
	}
	return fallback
}

func darwinOnBattery(fallback bool) bool {
	out, err := runWithTimeout("pmset", "-g", "batt")
	if err != nil {
		return fallback
	}
	lower := strings.ToLower(out)
	if strings.Contains(lower, "battery power") {
		return true
	}
	if strings.Contains(lower, "ac power") {
		return false
	}
	return fallback
}

func runWithTimeout(name string, args ...string) (string, error) {
	cmd := exec.Command(name, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf

	if err := cmd.Start(); err != nil {
		return "", err
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case err := <-done:
		return buf.String(), err
	case <-time.After(2 * time.Second):
		_ = cmd.Process.Kill()
		<-done
		return "", exec.ErrNotFound
	}
}

// Static is a fixed-value source for tests and headless policy checks.
type Static bool

func (s Static) OnBattery(bool) bool { return bool(s) }
