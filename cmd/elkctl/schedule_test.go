package main

import "testing"

func TestParseAt(t *testing.T) {
	dow, clock, err := parseAt("Thu 07:15:42")
	if err != nil {
		t.Fatalf("parseAt() error = %v", err)
	}
	if dow != 4 {
		t.Errorf("day = %d, want 4", dow)
	}
	if clock.Hour() != 7 || clock.Minute() != 15 || clock.Second() != 42 {
		t.Errorf("clock = %s, want 07:15:42", clock.Format("15:04:05"))
	}

	if dow, _, _ := parseAt("sunday 00:00:00"); dow != 7 {
		t.Errorf("sunday = %d, want 7", dow)
	}

	for _, bad := range []string{"", "07:15:42", "weekend 07:15:42", "Thu 25:00:00", "Someday 07:15:42"} {
		if _, _, err := parseAt(bad); err == nil {
			t.Errorf("parseAt(%q) should fail", bad)
		}
	}
}
