package request

import (
	"errors"
	"net/url"
	"testing"
	"time"

	"cloudweave/internal/geo"
)

func validRaw() Raw {
	return Raw{
		LonMin:  "10",
		LatMin:  "10",
		LonMax:  "20",
		LatMax:  "20",
		Start:   "2024-07-01T00:00:00Z",
		End:     "2024-07-01T03:00:00Z",
		Zoom:    "5",
		Workers: "4",
	}
}

func TestBuild_Valid(t *testing.T) {
	req, err := Build(validRaw(), nil)
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}
	if req.Box != geo.NewBox(10, 10, 20, 20) {
		t.Errorf("Box = %v", req.Box)
	}
	if req.Zoom != 5 || req.MaxWorkers != 4 {
		t.Errorf("Zoom/MaxWorkers = %d/%d, want 5/4", req.Zoom, req.MaxWorkers)
	}
	wantStart := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	if !req.Range.Start.Equal(wantStart) || req.Range.Start.Location() != time.UTC {
		t.Errorf("Start = %v, want %v in UTC", req.Range.Start, wantStart)
	}
}

func TestBuild_Defaults(t *testing.T) {
	raw := validRaw()
	raw.Zoom = ""
	raw.Workers = "  "
	req, err := Build(raw, nil)
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}
	if req.Zoom != DefaultZoom || req.MaxWorkers != DefaultWorkers {
		t.Fatalf("defaults = %d/%d, want %d/%d", req.Zoom, req.MaxWorkers, DefaultZoom, DefaultWorkers)
	}
}

func TestBuild_Failures(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*Raw)
		kinds []Kind
	}{
		{
			name:  "non-numeric longitude",
			edit:  func(r *Raw) { r.LonMin = "abc" },
			kinds: []Kind{KindNotANumber},
		},
		{
			name:  "NaN literal is not a number",
			edit:  func(r *Raw) { r.LatMax = "NaN" },
			kinds: []Kind{KindNotANumber},
		},
		{
			name:  "degenerate box",
			edit:  func(r *Raw) { r.LonMin, r.LonMax = "100", "100" },
			kinds: []Kind{KindDegenerateBox},
		},
		{
			name:  "inverted latitude",
			edit:  func(r *Raw) { r.LatMin, r.LatMax = "30", "20" },
			kinds: []Kind{KindInvertedBox},
		},
		{
			name:  "bad timestamps",
			edit:  func(r *Raw) { r.Start, r.End = "yesterday", "" },
			kinds: []Kind{KindInvalidTimestamp},
		},
		{
			name:  "start after end",
			edit:  func(r *Raw) { r.Start, r.End = r.End, r.Start },
			kinds: []Kind{KindInvalidTimeRange},
		},
		{
			name:  "zero workers",
			edit:  func(r *Raw) { r.Workers = "0" },
			kinds: []Kind{KindOutOfRange},
		},
		{
			name:  "fractional zoom",
			edit:  func(r *Raw) { r.Zoom = "5.5" },
			kinds: []Kind{KindNotANumber},
		},
		{
			name: "collects every failure",
			edit: func(r *Raw) {
				r.LonMin = "x"
				r.Start = "not a time"
				r.Workers = "-2"
			},
			kinds: []Kind{KindNotANumber, KindInvalidTimestamp, KindOutOfRange},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := validRaw()
			tt.edit(&raw)
			req, err := Build(raw, nil)
			if err == nil {
				t.Fatalf("Build() = %+v, want error", req)
			}
			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("error type = %T, want ValidationErrors", err)
			}
			for _, k := range tt.kinds {
				if !verrs.Has(k) {
					t.Errorf("errors %v missing kind %s", verrs, k)
				}
			}
			if req != (JobRequest{}) {
				t.Errorf("Build() returned a request alongside errors: %+v", req)
			}
		})
	}
}

func TestBuild_DegenerateWrapsGeoError(t *testing.T) {
	raw := validRaw()
	raw.LonMin, raw.LonMax = "100", "100"
	_, err := Build(raw, nil)
	if !errors.Is(err, geo.ErrDegenerateBox) {
		t.Fatalf("errors.Is(err, geo.ErrDegenerateBox) = false for %v", err)
	}
}

func TestParseInstant(t *testing.T) {
	kolkata := time.FixedZone("IST", 5*3600+1800)
	tests := []struct {
		in   string
		loc  *time.Location
		want time.Time
	}{
		{in: "2024-07-01T06:30:00+05:30", loc: time.UTC, want: time.Date(2024, 7, 1, 1, 0, 0, 0, time.UTC)},
		{in: "2024-07-01T01:00:00.250Z", loc: time.UTC, want: time.Date(2024, 7, 1, 1, 0, 0, 250e6, time.UTC)},
		{in: "2024-07-01T06:30", loc: kolkata, want: time.Date(2024, 7, 1, 1, 0, 0, 0, time.UTC)},
		{in: "2024-07-01 01:00", loc: time.UTC, want: time.Date(2024, 7, 1, 1, 0, 0, 0, time.UTC)},
		{in: "2024-07-01", loc: time.UTC, want: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseInstant(tt.in, tt.loc)
			if err != nil {
				t.Fatalf("ParseInstant(%q) error: %v", tt.in, err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("ParseInstant(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestQueryAndStreamURL(t *testing.T) {
	raw := validRaw()
	raw.LonMin = "10.50"
	raw.Start = "2024-07-01T05:30:00+05:30"
	req, err := Build(raw, nil)
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}

	q := req.Query()
	want := map[string]string{
		"lon_min":     "10.5",
		"lat_min":     "10",
		"lon_max":     "20",
		"lat_max":     "20",
		"start_iso":   "2024-07-01T00:00:00.000Z",
		"end_iso":     "2024-07-01T03:00:00.000Z",
		"zoom":        "5",
		"max_workers": "4",
	}
	for k, v := range want {
		if got := q.Get(k); got != v {
			t.Errorf("query[%s] = %q, want %q", k, got, v)
		}
	}

	s, err := req.StreamURL("http://localhost:8000/", "interpolate/stream")
	if err != nil {
		t.Fatalf("StreamURL() error: %v", err)
	}
	u, err := url.Parse(s)
	if err != nil {
		t.Fatalf("StreamURL() produced unparsable url %q: %v", s, err)
	}
	if u.Host != "localhost:8000" || u.Path != "/interpolate/stream" {
		t.Errorf("StreamURL() = %q", s)
	}
	if u.Query().Get("max_workers") != "4" {
		t.Errorf("StreamURL() query = %q", u.RawQuery)
	}

	if _, err := req.StreamURL("localhost", "/x"); err == nil {
		t.Error("StreamURL() accepted a relative backend url")
	}
}
