package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Innertube API constants. The ANDROID client skips checks the WEB surface
// enforces, which is the whole point of using it; wrong identity headers
// change which endpoints accept the request.
const (
	defaultPlayerURL = "https://www.youtube.com/youtubei/v1/player"
	defaultWatchURL  = "https://www.youtube.com/watch?v="

	androidClientVersion = "20.10.38"
	androidClientName    = "3"
	androidSDKVersion    = 30
	androidUserAgent     = "com.google.android.youtube/" + androidClientVersion + " (Linux; U; Android 11) gzip"
)

type innertubeReq struct {
	VideoID        string       `json:"videoId"`
	Context        innertubeCtx `json:"context"`
	RacyCheckOk    bool         `json:"racyCheckOk"`
	ContentCheckOk bool         `json:"contentCheckOk"`
}

type innertubeCtx struct {
	Client innertubeClient `json:"client"`
}

type innertubeClient struct {
	ClientName        string `json:"clientName"`
	ClientVersion     string `json:"clientVersion"`
	AndroidSdkVersion int    `json:"androidSdkVersion,omitempty"`
	Hl                string `json:"hl,omitempty"`
	Gl                string `json:"gl,omitempty"`
}

// trackName carries the platform's two display-name encodings.
type trackName struct {
	SimpleText string `json:"simpleText"`
	Runs       []struct {
		Text string `json:"text"`
	} `json:"runs"`
}

func (n trackName) String() string {
	if len(n.Runs) > 0 && n.Runs[0].Text != "" {
		return n.Runs[0].Text
	}
	if n.SimpleText != "" {
		return n.SimpleText
	}
	return "Unknown"
}

// captionTrack is one entry of the player response's track list.
// Kind "asr" marks an auto-generated track.
type captionTrack struct {
	BaseURL      string    `json:"baseUrl"`
	LanguageCode string    `json:"languageCode"`
	Kind         string    `json:"kind"`
	Name         trackName `json:"name"`
}

func (t captionTrack) autoGenerated() bool { return t.Kind == "asr" }

type playerResponse struct {
	Captions          *captionList       `json:"captions"`
	PlayabilityStatus *playabilityStatus `json:"playabilityStatus"`
}

type captionList struct {
	PlayerCaptionsTracklistRenderer struct {
		CaptionTracks []captionTrack `json:"captionTracks"`
	} `json:"playerCaptionsTracklistRenderer"`
}

type playabilityStatus struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// tracks returns the caption track list, nil when captions are absent.
func (r *playerResponse) tracks() []captionTrack {
	if r.Captions == nil {
		return nil
	}
	return r.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks
}

// checkPlayable maps the platform's playability verdict onto the error
// taxonomy. LOGIN_REQUIRED and UNPLAYABLE get their own causes because they
// are what users actually hit.
func (r *playerResponse) checkPlayable() error {
	if r.PlayabilityStatus == nil || r.PlayabilityStatus.Status == "OK" {
		return nil
	}
	status := r.PlayabilityStatus.Status
	reason := r.PlayabilityStatus.Reason
	switch status {
	case "LOGIN_REQUIRED":
		if reason == "" {
			reason = "video requires login (age restricted)"
		}
	case "UNPLAYABLE":
		if reason == "" {
			reason = "video is unplayable"
		}
	}
	return &UnplayableError{Status: status, Reason: reason}
}

// callPlayer POSTs the player endpoint with the ANDROID client context and
// decodes the response.
func (x *Extractor) callPlayer(ctx context.Context, videoID, apiKey string) (*playerResponse, error) {
	metrics.PlayerCalls.Add(1)

	payload, err := json.Marshal(innertubeReq{
		VideoID: videoID,
		Context: innertubeCtx{
			Client: innertubeClient{
				ClientName:        "ANDROID",
				ClientVersion:     androidClientVersion,
				AndroidSdkVersion: androidSDKVersion,
				Hl:                "en",
				Gl:                "US",
			},
		},
		RacyCheckOk:    true,
		ContentCheckOk: true,
	})
	if err != nil {
		return nil, err
	}

	// No manual Accept-Encoding: the transport only decompresses gzip it
	// negotiated itself, so a hand-set header would surface raw compressed
	// bytes to the JSON decoder.
	body, err := x.exec.do(ctx, request{
		method: http.MethodPost,
		url:    x.playerURL + "?key=" + apiKey + "&prettyPrint=false",
		headers: map[string]string{
			"Content-Type":             "application/json",
			"User-Agent":               androidUserAgent,
			"X-YouTube-Client-Name":    androidClientName,
			"X-YouTube-Client-Version": androidClientVersion,
		},
		body: payload,
	})
	if err != nil {
		return nil, fmt.Errorf("innertube player: %w", err)
	}

	var resp playerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode player response (%d bytes): %w", len(body), err)
	}
	return &resp, nil
}

// fetchTimedText retrieves the raw caption markup for a selected track.
func (x *Extractor) fetchTimedText(ctx context.Context, baseURL string) ([]byte, error) {
	metrics.TimedTextFetches.Add(1)

	body, err := x.exec.do(ctx, request{
		method: http.MethodGet,
		url:    baseURL,
		headers: map[string]string{
			"User-Agent":      androidUserAgent,
			"Accept-Language": "en-US,en;q=0.9",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch timedtext: %w", err)
	}
	return body, nil
}
