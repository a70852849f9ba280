package engine

import (
	"fmt"
	"os"
)

// Size thresholds for the segmentation decision table.
const (
	singleSegmentBelow = 4 * 1024 * 1024
	twoSegmentsBelow   = 32 * 1024 * 1024
	fourSegmentsBelow  = 128 * 1024 * 1024
)

// Segment is one contiguous byte range [Start, End] of a download,
// fetched by its own GET and written to its own part file.
type Segment struct {
	Index      int
	Start      int64
	End        int64
	TempPath   string
	Downloaded int64 // guarded by the owning task's mutex
}

// Length returns the segment's byte count.
func (s *Segment) Length() int64 {
	return s.End - s.Start + 1
}

// segmentCount applies the size decision table: small files aren't worth
// splitting, mid-size files get a reduced count.
func segmentCount(totalSize int64, configured int) int {
	if configured < 1 {
		configured = 1
	}
	if totalSize <= 0 {
		return configured
	}
	switch {
	case totalSize < singleSegmentBelow:
		return 1
	case totalSize < twoSegmentsBelow:
		return min(2, configured)
	case totalSize < fourSegmentsBelow:
		return min(4, configured)
	}
	return configured
}

// partPath returns the numbered part file path for a segment index.
func partPath(filePath string, index int) string {
	return fmt.Sprintf("%s.part%d", filePath, index)
}

// planSegments splits [0, totalSize) equally across count segments, the
// last one absorbing the remainder, and reconciles each against any part
// file already on disk: a part no larger than the segment resumes at its
// size, an oversized (stale) part is removed.
func planSegments(filePath string, totalSize int64, count int) []*Segment {
	segSize := totalSize / int64(count)
	segs := make([]*Segment, 0, count)
	for i := 0; i < count; i++ {
		s := &Segment{
			Index:    i,
			Start:    int64(i) * segSize,
			TempPath: partPath(filePath, i),
		}
		if i == count-1 {
			s.End = totalSize - 1
		} else {
			s.End = int64(i+1)*segSize - 1
		}

		if info, err := os.Stat(s.TempPath); err == nil && !info.IsDir() && info.Size() <= s.Length() {
			s.Downloaded = info.Size()
		} else if err == nil {
			os.Remove(s.TempPath)
		}
		segs = append(segs, s)
	}
	return segs
}
