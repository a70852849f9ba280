package engine

import (
	"testing"
	"time"
)

func TestThrottleUnlimited(t *testing.T) {
	th := NewThrottle()
	if got := th.Grant(1 << 20); got != 1<<20 {
		t.Errorf("unlimited Grant = %d, want full request", got)
	}
}

func TestThrottleCapsWindow(t *testing.T) {
	th := NewThrottle()
	th.SetLimit(10000) // 10 KB/s
	th.Reset()

	var granted int64
	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		granted += th.Grant(4096)
		time.Sleep(time.Millisecond)
	}
	// 300 ms of a 10 KB/s budget is ~3 KB; allow one chunk of slack.
	if granted > 10000/3+4096 {
		t.Errorf("granted %d bytes in 300ms at 10KB/s", granted)
	}
	if granted == 0 {
		t.Error("some bytes should be granted")
	}
}

func TestThrottleWindowRestarts(t *testing.T) {
	th := NewThrottle()
	th.SetLimit(1000)
	th.Reset()

	// An aged window allows roughly limit*elapsed/1000 bytes and then
	// restarts, so the very next grant draws on a near-empty window.
	time.Sleep(1050 * time.Millisecond)
	first := th.Grant(5000)
	if first < 500 || first > 2500 {
		t.Errorf("aged window granted %d, want about 1050", first)
	}
	second := th.Grant(5000)
	if second > 100 {
		t.Errorf("fresh window granted %d immediately", second)
	}
}

func TestThrottleZeroAndNegative(t *testing.T) {
	th := NewThrottle()
	th.SetLimit(-5)
	if th.Limit() != 0 {
		t.Error("negative limit must clamp to unlimited")
	}
	if th.Grant(0) != 0 {
		t.Error("zero want grants zero")
	}
}
