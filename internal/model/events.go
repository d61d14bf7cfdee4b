package model

import "fmt"

// Event is the single terminal notification that closes a job
type Event struct {
	Kind    EventKind   `json:"kind"`
	Payload interface{} `json:"payload"`
}

// CompletePayload is delivered with a "complete" event
type CompletePayload struct {
	JobID         string `json:"jobId"`
	AudioURL      string `json:"audio_url"`
	VideoURL      string `json:"video_url"`
	Bucket        string `json:"bucket"`
	BucketSeconds int    `json:"bucketSeconds"`
	ImageCount    int    `json:"imageCount"`
	Degraded      bool   `json:"degraded"`
}

// ErrorPayload is delivered with an "error" event. Timeout is set when the
// stream gave up waiting and the job itself may still finish.
type ErrorPayload struct {
	JobID   string `json:"jobId,omitempty"`
	Message string `json:"message"`
	Timeout bool   `json:"timeout,omitempty"`
}

func NewCompleteEvent(p CompletePayload) Event {
	return Event{Kind: EventComplete, Payload: p}
}

func NewErrorEvent(jobID, format string, args ...interface{}) Event {
	return Event{Kind: EventError, Payload: ErrorPayload{JobID: jobID, Message: fmt.Sprintf(format, args...)}}
}

func NewTimeoutEvent(jobID string) Event {
	return Event{Kind: EventError, Payload: ErrorPayload{
		JobID:   jobID,
		Message: fmt.Sprintf("timed out waiting for job %s", jobID),
		Timeout: true,
	}}
}

// Artifact store layout
func PendingRequestKey(jobID string) string { return fmt.Sprintf("pending/%s.json", jobID) }

func PendingAudioKey(jobID string) string { return fmt.Sprintf("pending/%s.mp3", jobID) }

func AudioKey(jobID string, bucketSeconds int) string {
	return fmt.Sprintf("audio/%s_%ds.mp3", jobID, bucketSeconds)
}

func VideoKey(jobID string) string { return fmt.Sprintf("complete/%s.mp4", jobID) }
