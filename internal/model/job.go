package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Job represents one end-to-end music-video request, keyed by the upstream music task id
type Job struct {
	ID        string        `json:"id"`
	Request   CreateRequest `json:"request"`
	Status    JobStatus     `json:"status"`
	AudioURL  string        `json:"audioUrl,omitempty"`
	Error     *string       `json:"error,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// CreateRequest is the creative brief submitted by a client
type CreateRequest struct {
	Artist string     `json:"artist,omitempty" validate:"omitempty,max=200"`
	Vision string     `json:"vision,omitempty" validate:"required_without=Artist,max=500"`
	Mood   string     `json:"mood" validate:"max=100"`
	Age    string     `json:"age" validate:"max=100"`
	Length LengthHint `json:"length,omitempty"`
}

// Target returns the artist when given, otherwise the vision
func (r CreateRequest) Target() string {
	if strings.TrimSpace(r.Artist) != "" {
		return r.Artist
	}
	return r.Vision
}

// Kind returns "artist" or "vision" depending on which field drives the brief
func (r CreateRequest) Kind() string {
	if strings.TrimSpace(r.Artist) != "" {
		return KindArtist
	}
	return KindVision
}

// LengthHint is the requested song length in seconds. Clients send it either
// as a JSON string ("60") or a number (60).
type LengthHint string

func (l *LengthHint) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = LengthHint(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("length must be a string or number: %w", err)
	}
	*l = LengthHint(n.String())
	return nil
}

// Seconds renders the hint the way the music prompt expects it
func (l LengthHint) Seconds() string {
	if l == "" {
		return ""
	}
	return string(l) + " sec"
}

// CreateResponse is returned once the music render has been accepted upstream
type CreateResponse struct {
	Success bool   `json:"success"`
	TaskID  string `json:"task_id"`
}

// JobStatusResponse describes a job for status lookups
type JobStatusResponse struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	Error     *string   `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
