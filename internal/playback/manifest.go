package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/grafov/m3u8"
)

var (
	errNoVariants    = errors.New("master playlist has no playable variants")
	errEmptyPlaylist = errors.New("media playlist has no segments")
	errNestedMaster  = errors.New("variant points at another master playlist")
	maxPlaylistBytes = int64(8 << 20)
)

// Variant is the media playlist chosen by the software loader.
type Variant struct {
	URL            string
	Bandwidth      uint32
	Resolution     string
	Segments       int
	TargetDuration float64
	Live           bool
}

// resolveVariant loads manifestURL and, for a master playlist, picks the
// best variant under maxBandwidth and loads its media playlist.
func resolveVariant(ctx context.Context, hc *http.Client, manifestURL string, maxBandwidth uint32) (Variant, error) {
	pl, kind, err := fetchPlaylist(ctx, hc, manifestURL)
	if err != nil {
		return Variant{}, err
	}
	if kind == m3u8.MEDIA {
		return describeMedia(manifestURL, pl.(*m3u8.MediaPlaylist))
	}

	master := pl.(*m3u8.MasterPlaylist)
	v := selectVariant(master.Variants, maxBandwidth)
	if v == nil {
		return Variant{}, errNoVariants
	}
	variantURL, err := resolveRef(manifestURL, v.URI)
	if err != nil {
		return Variant{}, err
	}
	pl, kind, err = fetchPlaylist(ctx, hc, variantURL)
	if err != nil {
		return Variant{}, err
	}
	if kind != m3u8.MEDIA {
		return Variant{}, errNestedMaster
	}
	out, err := describeMedia(variantURL, pl.(*m3u8.MediaPlaylist))
	if err != nil {
		return Variant{}, err
	}
	out.Bandwidth = v.Bandwidth
	out.Resolution = v.Resolution
	return out, nil
}

func fetchPlaylist(ctx context.Context, hc *http.Client, rawURL string) (m3u8.Playlist, m3u8.ListType, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch playlist: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("fetch playlist %s: %s", rawURL, resp.Status)
	}
	pl, kind, err := m3u8.DecodeFrom(io.LimitReader(resp.Body, maxPlaylistBytes), false)
	if err != nil {
		return nil, 0, fmt.Errorf("parse playlist %s: %w", rawURL, err)
	}
	return pl, kind, nil
}

func describeMedia(rawURL string, media *m3u8.MediaPlaylist) (Variant, error) {
	n := 0
	for _, seg := range media.Segments {
		if seg != nil {
			n++
		}
	}
	if n == 0 {
		return Variant{}, errEmptyPlaylist
	}
	return Variant{
		URL:            rawURL,
		Segments:       n,
		TargetDuration: media.TargetDuration,
		Live:           !media.Closed,
	}, nil
}

// selectVariant returns the highest-bandwidth variant not above limit
// (0 means unlimited), or the lowest one when every variant exceeds it.
// I-frame-only variants are ignored.
func selectVariant(variants []*m3u8.Variant, limit uint32) *m3u8.Variant {
	var best, lowest *m3u8.Variant
	for _, v := range variants {
		if v == nil || v.Iframe || v.URI == "" {
			continue
		}
		if lowest == nil || v.Bandwidth < lowest.Bandwidth {
			lowest = v
		}
		if limit > 0 && v.Bandwidth > limit {
			continue
		}
		if best == nil || v.Bandwidth > best.Bandwidth {
			best = v
		}
	}
	if best == nil {
		return lowest
	}
	return best
}

func resolveRef(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}
