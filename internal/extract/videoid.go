package extract

import (
	"net/url"
	"regexp"
	"strings"
)

// videoIDRe matches the platform's 11-character ID charset.
var videoIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ParseVideoID resolves input to an 11-character video ID. It accepts a bare
// ID or any of the common watch URL shapes (watch?v=, youtu.be/, /embed/,
// /shorts/, /live/). Anything else yields InvalidVideoIDError.
func ParseVideoID(input string) (string, error) {
	input = strings.TrimSpace(input)
	if videoIDRe.MatchString(input) {
		return input, nil
	}

	if !strings.Contains(input, "/") && !strings.Contains(input, ".") {
		return "", &InvalidVideoIDError{Input: input}
	}

	raw := input
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", &InvalidVideoIDError{Input: input}
	}

	var candidate string
	host := strings.TrimPrefix(u.Hostname(), "www.")
	switch host {
	case "youtu.be":
		candidate = strings.Trim(u.Path, "/")
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		switch {
		case u.Path == "/watch":
			candidate = u.Query().Get("v")
		case strings.HasPrefix(u.Path, "/embed/"),
			strings.HasPrefix(u.Path, "/shorts/"),
			strings.HasPrefix(u.Path, "/live/"),
			strings.HasPrefix(u.Path, "/v/"):
			parts := strings.Split(strings.Trim(u.Path, "/"), "/")
			if len(parts) >= 2 {
				candidate = parts[1]
			}
		}
	}

	if videoIDRe.MatchString(candidate) {
		return candidate, nil
	}
	return "", &InvalidVideoIDError{Input: input}
}
