package translate

import (
	"errors"
	"testing"
	"time"
)

func TestParseCatalogueTime(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		// OData ContentDate/Start and PublicationDate.
		{name: "odata millis", input: "2023-01-05T10:14:11.024Z", want: time.Date(2023, 1, 5, 10, 14, 11, 24000000, time.UTC)},
		{name: "odata publication", input: "2023-01-05T14:05:12.123456Z", want: time.Date(2023, 1, 5, 14, 5, 12, 123456000, time.UTC)},
		// STAC datetime and published.
		{name: "stac seconds", input: "2023-01-05T10:14:11Z", want: time.Date(2023, 1, 5, 10, 14, 11, 0, time.UTC)},
		{name: "stac offset", input: "2023-01-05T12:14:11+02:00", want: time.Date(2023, 1, 5, 10, 14, 11, 0, time.UTC)},
		// Legacy ledger rows written without a zone.
		{name: "no zone micros", input: "2020-06-15T10:30:21.024000", want: time.Date(2020, 6, 15, 10, 30, 21, 24000000, time.UTC)},
		{name: "no zone seconds", input: "2020-06-15T10:30:21", want: time.Date(2020, 6, 15, 10, 30, 21, 0, time.UTC)},
		{name: "padded", input: "\t2023-01-05T10:14:11Z\n", want: time.Date(2023, 1, 5, 10, 14, 11, 0, time.UTC)},
		{name: "empty", input: "", wantErr: true},
		{name: "day only", input: "2023-01-05", wantErr: true},
		{name: "file day", input: "05-01-2023", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCatalogueTime(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseCatalogueTime(%q) = %v, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCatalogueTime(%q) error: %v", tt.input, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseCatalogueTime(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if got.Location() != time.UTC {
				t.Errorf("ParseCatalogueTime(%q) location = %v, want UTC", tt.input, got.Location())
			}
		})
	}
}

func TestFormatSTACTime(t *testing.T) {
	cet := time.FixedZone("CET", 60*60)

	tests := map[string]struct {
		in   time.Time
		want string
	}{
		"sensing time":  {in: time.Date(2023, 1, 5, 10, 14, 11, 24000000, time.UTC), want: "2023-01-05T10:14:11Z"},
		"local zone":    {in: time.Date(2023, 1, 5, 11, 14, 11, 0, cet), want: "2023-01-05T10:14:11Z"},
		"unset sensing": {in: time.Time{}, want: "0001-01-01T00:00:00Z"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if got := FormatSTACTime(tt.in); got != tt.want {
				t.Errorf("FormatSTACTime() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseDateTimeInterval(t *testing.T) {
	jan1 := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	jan31 := time.Date(2023, 1, 31, 23, 59, 59, 0, time.UTC)

	tests := []struct {
		name      string
		input     string
		wantStart *time.Time
		wantEnd   *time.Time
		wantErr   bool
	}{
		{name: "absent", input: ""},
		{name: "instant", input: "2023-01-01T00:00:00Z", wantStart: &jan1, wantEnd: &jan1},
		{name: "closed", input: "2023-01-01T00:00:00Z/2023-01-31T23:59:59Z", wantStart: &jan1, wantEnd: &jan31},
		{name: "spaced", input: " 2023-01-01T00:00:00Z / 2023-01-31T23:59:59Z ", wantStart: &jan1, wantEnd: &jan31},
		{name: "open start", input: "../2023-01-31T23:59:59Z", wantEnd: &jan31},
		{name: "open end", input: "2023-01-01T00:00:00Z/..", wantStart: &jan1},
		{name: "empty start", input: "/2023-01-31T23:59:59Z", wantEnd: &jan31},
		{name: "bad instant", input: "yesterday", wantErr: true},
		{name: "bad start", input: "last-week/2023-01-31T23:59:59Z", wantErr: true},
		{name: "bad end", input: "2023-01-01T00:00:00Z/31-01-2023", wantErr: true},
		{name: "three parts", input: "2023-01-01T00:00:00Z/2023-01-15T00:00:00Z/2023-01-31T23:59:59Z", wantErr: true},
		{name: "reversed", input: "2023-01-31T23:59:59Z/2023-01-01T00:00:00Z", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := ParseDateTimeInterval(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidDateTime) {
					t.Fatalf("ParseDateTimeInterval(%q) error = %v, want ErrInvalidDateTime", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDateTimeInterval(%q) error: %v", tt.input, err)
			}
			checkBound(t, "start", start, tt.wantStart)
			checkBound(t, "end", end, tt.wantEnd)
		})
	}
}

func checkBound(t *testing.T, which string, got, want *time.Time) {
	t.Helper()
	switch {
	case want == nil && got != nil:
		t.Errorf("%s = %v, want open", which, *got)
	case want != nil && got == nil:
		t.Errorf("%s open, want %v", which, *want)
	case want != nil && !got.Equal(*want):
		t.Errorf("%s = %v, want %v", which, *got, *want)
	}
}

func TestParseDay(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{name: "cli layout", input: "15/06/2020", want: time.Date(2020, 6, 15, 0, 0, 0, 0, time.UTC)},
		{name: "iso", input: "2020-06-15", want: time.Date(2020, 6, 15, 0, 0, 0, 0, time.UTC)},
		{name: "padded", input: " 31/12/2022 ", want: time.Date(2022, 12, 31, 0, 0, 0, 0, time.UTC)},
		{name: "month first", input: "06/15/2020", wantErr: true},
		{name: "file layout", input: "15-06-2020", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDay(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidDateTime) {
					t.Fatalf("ParseDay(%q) error = %v, want ErrInvalidDateTime", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDay(%q) error: %v", tt.input, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseDay(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestFileDay(t *testing.T) {
	sensed := time.Date(2020, 6, 15, 23, 30, 0, 0, time.FixedZone("UTC-2", -2*60*60))

	name := FormatFileDay(sensed)
	if name != "16-06-2020" {
		t.Fatalf("FormatFileDay() = %q, want the UTC day 16-06-2020", name)
	}

	day, err := ParseFileDay(name)
	if err != nil {
		t.Fatalf("ParseFileDay(%q) error: %v", name, err)
	}
	if !day.Equal(time.Date(2020, 6, 16, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("ParseFileDay(%q) = %v", name, day)
	}

	for _, bad := range []string{"2020-06-16", "16/06/2020", "32-06-2020"} {
		if _, err := ParseFileDay(bad); !errors.Is(err, ErrInvalidDateTime) {
			t.Errorf("ParseFileDay(%q) error = %v, want ErrInvalidDateTime", bad, err)
		}
	}
}
