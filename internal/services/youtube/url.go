// Package youtube parses YouTube video URLs and fetches oEmbed metadata.
package youtube

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// ProviderName is stored on videos added from a YouTube URL.
const ProviderName = "youtube"

var (
	exactHosts = map[string]struct{}{
		"youtube.com":              {},
		"www.youtube.com":          {},
		"m.youtube.com":            {},
		"music.youtube.com":        {},
		"youtu.be":                 {},
		"www.youtu.be":             {},
		"youtube-nocookie.com":     {},
		"www.youtube-nocookie.com": {},
	}
	videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
)

// URL validation errors.
var (
	ErrNotYouTube  = errors.New("URL must be a YouTube URL")
	ErrBadScheme   = errors.New("URL must use http or https")
	ErrUnsupported = errors.New("unsupported YouTube URL format")
)

func normalizeHost(host string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(host)), ".")
}

// IsYouTubeHost reports whether host belongs to YouTube.
func IsYouTubeHost(host string) bool {
	host = normalizeHost(host)
	if host == "" {
		return false
	}
	if _, ok := exactHosts[host]; ok {
		return true
	}
	return strings.HasSuffix(host, ".youtube.com") || strings.HasSuffix(host, ".youtube-nocookie.com")
}

// Validate parses raw and checks that it is an http(s) YouTube URL.
func Validate(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, ErrBadScheme
	}
	if !IsYouTubeHost(u.Hostname()) {
		return nil, ErrNotYouTube
	}
	return u, nil
}

func videoID(raw string) (string, bool) {
	id := strings.TrimSpace(raw)
	return id, videoIDPattern.MatchString(id)
}

// VideoID extracts the 11-character video id from watch, short-link, embed,
// shorts, live and /v/ URLs.
func VideoID(raw string) (string, error) {
	u, err := Validate(raw)
	if err != nil {
		return "", err
	}
	if id, ok := videoID(u.Query().Get("v")); ok {
		return id, nil
	}
	host := normalizeHost(u.Hostname())
	parts := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	if (host == "youtu.be" || host == "www.youtu.be") && len(parts) > 0 {
		if id, ok := videoID(parts[0]); ok {
			return id, nil
		}
	}
	if len(parts) >= 2 {
		switch strings.ToLower(parts[0]) {
		case "embed", "shorts", "live", "v":
			if id, ok := videoID(parts[1]); ok {
				return id, nil
			}
		}
	}
	return "", ErrUnsupported
}
