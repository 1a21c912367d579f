package request

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"cloudweave/internal/geo"
)

// Raw holds the unvalidated form values exactly as the user typed them.
type Raw struct {
	LonMin  string
	LatMin  string
	LonMax  string
	LatMax  string
	Start   string
	End     string
	Zoom    string
	Workers string
}

// Layouts that carry their own offset and are therefore unambiguous.
var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04:05Z07:00",
}

// Layouts without an offset; resolved in the caller-supplied location.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Build validates raw and returns the canonical request. Every failure is
// collected into a ValidationErrors value. Zone-less timestamps are resolved
// in loc (UTC when nil). Build performs no I/O.
func Build(raw Raw, loc *time.Location) (JobRequest, error) {
	if loc == nil {
		loc = time.UTC
	}
	var errs ValidationErrors

	coord := func(field, v string) float64 {
		f, ok := parseFinite(v)
		if !ok {
			errs = append(errs, &ValidationError{Field: field, Kind: KindNotANumber, Value: v})
		}
		return f
	}
	lonMin := coord("lon_min", raw.LonMin)
	latMin := coord("lat_min", raw.LatMin)
	lonMax := coord("lon_max", raw.LonMax)
	latMax := coord("lat_max", raw.LatMax)
	coordsOK := len(errs) == 0

	instant := func(field, v string) (time.Time, bool) {
		ts, err := ParseInstant(v, loc)
		if err != nil {
			errs = append(errs, &ValidationError{Field: field, Kind: KindInvalidTimestamp, Value: v})
			return time.Time{}, false
		}
		return ts, true
	}
	start, startOK := instant("start_iso", raw.Start)
	end, endOK := instant("end_iso", raw.End)

	var box geo.Box
	if coordsOK {
		var err error
		box, err = geo.Validate(geo.NewBox(lonMin, latMin, lonMax, latMax))
		if err != nil {
			errs = append(errs, &ValidationError{Field: "box", Kind: geoKind(err), Err: err})
		}
	}

	if startOK && endOK && start.After(end) {
		errs = append(errs, &ValidationError{
			Field: "end_iso",
			Kind:  KindInvalidTimeRange,
			Value: raw.End,
		})
	}

	zoom := positiveInt("zoom", raw.Zoom, DefaultZoom, &errs)
	workers := positiveInt("max_workers", raw.Workers, DefaultWorkers, &errs)

	if len(errs) > 0 {
		return JobRequest{}, errs
	}
	return JobRequest{
		Box:        box,
		Range:      TimeRange{Start: start.UTC(), End: end.UTC()},
		Zoom:       zoom,
		MaxWorkers: workers,
	}, nil
}

// ParseInstant parses s as an absolute instant. Values without an explicit
// offset are interpreted in loc.
func ParseInstant(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	var lastErr error
	for _, layout := range zonedLayouts {
		ts, err := time.Parse(layout, s)
		if err == nil {
			return ts, nil
		}
		lastErr = err
	}
	for _, layout := range localLayouts {
		ts, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			return ts, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func parseFinite(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func positiveInt(field, s string, def int, errs *ValidationErrors) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	f, ok := parseFinite(s)
	if !ok || f != math.Trunc(f) {
		*errs = append(*errs, &ValidationError{Field: field, Kind: KindNotANumber, Value: s})
		return 0
	}
	if f <= 0 || f > math.MaxInt32 {
		*errs = append(*errs, &ValidationError{Field: field, Kind: KindOutOfRange, Value: s})
		return 0
	}
	return int(f)
}

func geoKind(err error) Kind {
	switch {
	case errors.Is(err, geo.ErrInvertedBox):
		return KindInvertedBox
	case errors.Is(err, geo.ErrOutOfRange):
		return KindOutOfRange
	default:
		return KindDegenerateBox
	}
}
