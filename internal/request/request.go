// Package request turns raw form values into a validated, canonical job request.
package request

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cloudweave/internal/geo"
)

// TimestampLayout is the wire encoding for start_iso/end_iso.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

const (
	DefaultZoom    = 7
	DefaultWorkers = 8
)

// TimeRange is a closed interval of absolute instants.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// JobRequest is immutable once built; pass it by value.
type JobRequest struct {
	Box        geo.Box
	Range      TimeRange
	Zoom       int
	MaxWorkers int
}

// Query serializes the request into the stream endpoint's query parameters.
func (r JobRequest) Query() url.Values {
	q := url.Values{}
	q.Set("lon_min", formatFloat(r.Box.SW.Lon))
	q.Set("lat_min", formatFloat(r.Box.SW.Lat))
	q.Set("lon_max", formatFloat(r.Box.NE.Lon))
	q.Set("lat_max", formatFloat(r.Box.NE.Lat))
	q.Set("start_iso", r.Range.Start.UTC().Format(TimestampLayout))
	q.Set("end_iso", r.Range.End.UTC().Format(TimestampLayout))
	q.Set("zoom", strconv.Itoa(r.Zoom))
	q.Set("max_workers", strconv.Itoa(r.MaxWorkers))
	return q
}

// StreamURL joins base and path and appends the encoded query.
func (r JobRequest) StreamURL(base, path string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("parse backend url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("backend url %q must be absolute", base)
	}
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = r.Query().Encode()
	return u.String(), nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
