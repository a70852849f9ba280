package cmd

import "testing"

func TestParseSize(t *testing.T) {
	cases := map[string]int64{
		"0":    0,
		"500":  500,
		"500K": 500 * 1024,
		"10M":  10 * 1024 * 1024,
		"1G":   1024 * 1024 * 1024,
		"2b":   2,
		" 3k ": 3 * 1024,
	}
	for in, want := range cases {
		got, err := parseSize(in)
		if err != nil {
			t.Errorf("parseSize(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("parseSize(%q) = %d, want %d", in, got, want)
		}
	}
	for _, bad := range []string{"", "abc", "-5", "12X"} {
		if _, err := parseSize(bad); err == nil {
			t.Errorf("parseSize(%q) should fail", bad)
		}
	}
}

func TestParseSchedule(t *testing.T) {
	start, end, ok := parseSchedule("22:00-06:30")
	if !ok || start != 22*60 || end != 6*60+30 {
		t.Errorf("got %d-%d ok=%v", start, end, ok)
	}
	if _, _, ok := parseSchedule(""); ok {
		t.Error("empty schedule disables")
	}
	for _, bad := range []string{"22:00", "25:00-06:00", "aa:bb-cc:dd", "10:61-11:00"} {
		if _, _, ok := parseSchedule(bad); ok {
			t.Errorf("parseSchedule(%q) should fail", bad)
		}
	}
}
