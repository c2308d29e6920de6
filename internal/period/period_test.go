package period

import (
	"testing"
	"time"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 14, hour, minute, 0, 0, time.Local)
}

func TestFor(t *testing.T) {
	tests := []struct {
		hour, minute int
		want         Period
	}{
		{0, 0, Evening},
		{5, 59, Evening},
		{6, 0, Morning},
		{11, 59, Morning},
		{12, 0, Any},
		{12, 30, Any},
		{12, 59, Any},
		{13, 0, Afternoon},
		{17, 59, Afternoon},
		{18, 0, Evening},
		{23, 59, Evening},
	}
	for _, tt := range tests {
		if got := For(at(tt.hour, tt.minute)); got != tt.want {
			t.Errorf("For(%02d:%02d) = %q, want %q", tt.hour, tt.minute, got, tt.want)
		}
	}
}

func TestIsActiveMatchesFor(t *testing.T) {
	for _, scheduled := range []Period{Morning, Afternoon, Evening} {
		for h := 0; h < 24; h++ {
			now := at(h, 15)
			got := IsActive(scheduled, now)
			want := For(now) == scheduled
			if got != want {
				t.Errorf("IsActive(%s, %02d:15) = %v, want %v", scheduled, h, got, want)
			}
		}
	}
}

func TestIsActiveAny(t *testing.T) {
	for h := 0; h < 24; h++ {
		if !IsActive(Any, at(h, 0)) {
			t.Errorf("IsActive(any, %02d:00) = false", h)
		}
		if !IsActive("", at(h, 0)) {
			t.Errorf("IsActive(\"\", %02d:00) = false", h)
		}
	}
}

func TestLunchGapHidesScheduledTasks(t *testing.T) {
	noon := at(12, 15)
	for _, p := range []Period{Morning, Afternoon, Evening} {
		if IsActive(p, noon) {
			t.Errorf("%s task active during lunch gap", p)
		}
	}
}

func TestTimeRemaining(t *testing.T) {
	tests := []struct {
		name   string
		now    time.Time
		want   time.Duration
		wantOK bool
	}{
		{"morning", at(8, 0), 4 * time.Hour, true},
		{"afternoon", at(17, 30), 30 * time.Minute, true},
		{"evening wraps", at(22, 0), 8 * time.Hour, true},
		{"after midnight", at(3, 0), 3 * time.Hour, true},
		{"lunch gap", at(12, 10), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := TimeRemaining(tt.now)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("remaining = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTimeRemainingAcrossDST(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	tests := []struct {
		name string
		now  time.Time
		want time.Duration
	}{
		// 2026-03-08: clocks jump from 02:00 EST to 03:00 EDT.
		{"spring morning", time.Date(2026, 3, 8, 8, 0, 0, 0, ny), 4 * time.Hour},
		{"spring afternoon", time.Date(2026, 3, 8, 14, 0, 0, 0, ny), 4 * time.Hour},
		{"spring before dawn", time.Date(2026, 3, 8, 1, 0, 0, 0, ny), 4 * time.Hour},
		{"spring eve", time.Date(2026, 3, 7, 22, 0, 0, 0, ny), 7 * time.Hour},
		// 2026-11-01: clocks fall back from 02:00 EDT to 01:00 EST.
		{"fall before dawn", time.Date(2026, 11, 1, 0, 30, 0, 0, ny), 6*time.Hour + 30*time.Minute},
		{"fall morning", time.Date(2026, 11, 1, 8, 0, 0, 0, ny), 4 * time.Hour},
		{"fall eve", time.Date(2026, 10, 31, 22, 0, 0, 0, ny), 9 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := TimeRemaining(tt.now)
			if !ok {
				t.Fatal("ok = false")
			}
			if got != tt.want {
				t.Errorf("remaining = %v, want %v", got, tt.want)
			}
			if end := tt.now.Add(got); end.Minute() != 0 || (end.Hour() != 6 && end.Hour() != 12 && end.Hour() != 18) {
				t.Errorf("band ends at %v, want a wall-clock boundary", end)
			}
		})
	}
}

func TestParse(t *testing.T) {
	if p, err := Parse(""); err != nil || p != Any {
		t.Errorf("Parse(\"\") = %q, %v", p, err)
	}
	if p, err := Parse("evening"); err != nil || p != Evening {
		t.Errorf("Parse(evening) = %q, %v", p, err)
	}
	if _, err := Parse("midnight"); err == nil {
		t.Error("expected error for unknown period")
	}
}

func TestDateKey(t *testing.T) {
	if got := DateKey(at(23, 59)); got != "2026-03-14" {
		t.Errorf("DateKey = %q, want 2026-03-14", got)
	}
}
