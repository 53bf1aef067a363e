package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestCustomTimeFormats(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  time.Time
	}{
		{
			"rfc3339 with offset",
			`"2026-08-20T08:00:00+02:00"`,
			time.Date(2026, 8, 20, 6, 0, 0, 0, time.UTC),
		},
		{
			"compact offset",
			`"2026-08-20T08:00:00+0200"`,
			time.Date(2026, 8, 20, 6, 0, 0, 0, time.UTC),
		},
		{
			"zulu",
			`"2026-08-20T06:00:00Z"`,
			time.Date(2026, 8, 20, 6, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var ct CustomTime
			if err := json.Unmarshal([]byte(tc.input), &ct); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !ct.Time.Equal(tc.want) {
				t.Errorf("parsed %v, want %v", ct.Time, tc.want)
			}
		})
	}
}

func TestCustomTimeNaiveAssumesAmsterdam(t *testing.T) {
	var ct CustomTime
	if err := json.Unmarshal([]byte(`"2026-08-20T08:00:00"`), &ct); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loc, err := time.LoadLocation("Europe/Amsterdam")
	if err != nil {
		t.Skip("tzdata not available")
	}
	want := time.Date(2026, 8, 20, 8, 0, 0, 0, loc)
	if !ct.Time.Equal(want) {
		t.Errorf("parsed %v, want %v", ct.Time, want)
	}
}

func TestCustomTimeNull(t *testing.T) {
	var ct CustomTime
	if err := json.Unmarshal([]byte(`null`), &ct); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ct.IsZero() {
		t.Errorf("null should stay zero, got %v", ct.Time)
	}
}

func TestCustomTimeUnparseable(t *testing.T) {
	var ct CustomTime
	if err := json.Unmarshal([]byte(`"20/08/2026 8am"`), &ct); err == nil {
		t.Fatal("expected error for unparseable timestamp")
	}
}

func TestCustomTimeMarshalRoundTrip(t *testing.T) {
	ct := CustomTime{Time: time.Date(2026, 8, 20, 6, 0, 0, 0, time.UTC)}
	out, err := json.Marshal(ct)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != `"2026-08-20T06:00:00Z"` {
		t.Errorf("got %s", out)
	}

	var zero CustomTime
	out, err = json.Marshal(zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != "null" {
		t.Errorf("zero time should marshal to null, got %s", out)
	}
}
