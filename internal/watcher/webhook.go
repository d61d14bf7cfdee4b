package watcher

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/makeasinger/musicvideo/internal/client"
)

// ErrMalformedCallback is returned for callbacks that cannot be acted on
var ErrMalformedCallback = errors.New("malformed callback")

// Signal is a normalized completion notification
type Signal struct {
	JobID    string
	Final    bool
	Failed   bool
	AudioURL string
	Reason   string
}

type callbackData struct {
	CallbackType string         `json:"callbackType"`
	TaskID       string         `json:"task_id"`
	TaskIDCamel  string         `json:"taskId"`
	Tracks       []client.Track `json:"data"`
}

type callbackEnvelope struct {
	Code        int          `json:"code"`
	Msg         string       `json:"msg"`
	TaskID      string       `json:"task_id"`
	TaskIDCamel string       `json:"taskId"`
	AudioURL    string       `json:"audio_url"`
	AudioCamel  string       `json:"audioUrl"`
	Data        callbackData `json:"data"`
}

// ParseCallback normalizes a music-service callback. Only callbackType
// "complete" (or "error") is final; intermediate callbacks such as "text"
// and "first" return a non-final signal. A final success without a job id
// or audio URL is ErrMalformedCallback.
func ParseCallback(body []byte) (Signal, error) {
	var env callbackEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Signal{}, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}

	sig := Signal{
		JobID: firstNonEmpty(env.Data.TaskID, env.Data.TaskIDCamel, env.TaskID, env.TaskIDCamel),
	}

	switch strings.ToLower(strings.TrimSpace(env.Data.CallbackType)) {
	case "complete":
		sig.Final = true
	case "error":
		sig.Final = true
		sig.Failed = true
		sig.Reason = firstNonEmpty(env.Msg, "music generation failed")
	default:
		return sig, nil
	}

	if sig.JobID == "" {
		return Signal{}, fmt.Errorf("%w: missing task id", ErrMalformedCallback)
	}
	if sig.Failed {
		return sig, nil
	}

	sig.AudioURL = firstNonEmpty(client.FirstPlayableURL(env.Data.Tracks), env.AudioURL, env.AudioCamel)
	if sig.AudioURL == "" {
		return Signal{}, fmt.Errorf("%w: missing audio url", ErrMalformedCallback)
	}
	return sig, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
