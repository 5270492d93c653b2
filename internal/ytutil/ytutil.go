package ytutil

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	VideoIDLength   = 11
	ChannelIDLength = 24
)

var videoHosts = map[string]bool{
	"youtube.com":       true,
	"www.youtube.com":   true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
}

// IsIDString reports whether s is made only of the characters YouTube uses in
// video and channel ids.
func IsIDString(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '-', c == '_':
		default:
			return false
		}
	}

	return true
}

func ValidVideoID(s string) bool {
	return len(s) == VideoIDLength && IsIDString(s)
}

func ValidChannelID(s string) bool {
	return len(s) == ChannelIDLength && strings.HasPrefix(s, "UC") && IsIDString(s)
}

// ExtractVideoID accepts a bare id, a watch url, a shorts or live url, or a
// youtu.be short link.
func ExtractVideoID(urlOrID string) (string, error) {
	urlOrID = strings.TrimSpace(urlOrID)

	if len(urlOrID) == VideoIDLength {
		if !IsIDString(urlOrID) {
			return "", fmt.Errorf("ytutil.ExtractVideoID: %q contains invalid characters", urlOrID)
		}

		return urlOrID, nil
	}

	parsed, err := url.Parse(urlOrID)
	if err != nil {
		return "", fmt.Errorf("ytutil.ExtractVideoID: %w", err)
	}

	var id string
	switch {
	case videoHosts[parsed.Host] && parsed.Path == "/watch":
		id = parsed.Query().Get("v")
		if id == "" {
			return "", fmt.Errorf("ytutil.ExtractVideoID: no v query parameter in %q", urlOrID)
		}
	case videoHosts[parsed.Host] && (strings.HasPrefix(parsed.Path, "/shorts/") || strings.HasPrefix(parsed.Path, "/live/")):
		id = parsed.Path[strings.LastIndex(parsed.Path, "/")+1:]
	case parsed.Host == "youtu.be":
		id = strings.TrimPrefix(parsed.Path, "/")
		if id == "" {
			return "", fmt.Errorf("ytutil.ExtractVideoID: no path content found in %q", urlOrID)
		}
	default:
		return "", fmt.Errorf("ytutil.ExtractVideoID: invalid url or id %q; could not find a known pattern", urlOrID)
	}

	if !ValidVideoID(id) {
		return "", fmt.Errorf("ytutil.ExtractVideoID: invalid video id %q in %q", id, urlOrID)
	}

	return id, nil
}

func ExtractChannelID(urlOrID string) (string, error) {
	urlOrID = strings.TrimSpace(urlOrID)

	if len(urlOrID) == ChannelIDLength {
		if !ValidChannelID(urlOrID) {
			return "", fmt.Errorf("ytutil.ExtractChannelID: %q is not a channel id", urlOrID)
		}

		return urlOrID, nil
	}

	parsed, err := url.Parse(urlOrID)
	if err != nil {
		return "", fmt.Errorf("ytutil.ExtractChannelID: %w", err)
	}

	if !videoHosts[parsed.Host] || !strings.HasPrefix(parsed.Path, "/channel/") {
		return "", fmt.Errorf("ytutil.ExtractChannelID: invalid url or id %q; could not find a known pattern", urlOrID)
	}

	id := strings.Split(strings.TrimPrefix(parsed.Path, "/channel/"), "/")[0]
	if !ValidChannelID(id) {
		return "", fmt.Errorf("ytutil.ExtractChannelID: invalid channel id %q in %q", id, urlOrID)
	}

	return id, nil
}

// ExtractVideoIDs splits text on whitespace and commas and extracts a video
// id from every field. Duplicates are dropped, keeping the first occurrence.
func ExtractVideoIDs(text string) ([]string, error) {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t' || r == '\r'
	})

	seen := make(map[string]bool)

	var ids []string
	for _, f := range fields {
		id, err := ExtractVideoID(f)
		if err != nil {
			return nil, fmt.Errorf("ytutil.ExtractVideoIDs: %w", err)
		}

		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	return ids, nil
}
