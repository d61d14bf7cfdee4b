package model

// Job status
type JobStatus string

const (
	JobStatusPending     JobStatus = "pending"
	JobStatusPolling     JobStatus = "polling"
	JobStatusAudioReady  JobStatus = "audio_ready"
	JobStatusImagesReady JobStatus = "images_ready"
	JobStatusAssembling  JobStatus = "assembling"
	JobStatusUploading   JobStatus = "uploading"
	JobStatusComplete    JobStatus = "complete"
	JobStatusFailed      JobStatus = "failed"
)

// WatchableStatuses are the states in which the upstream render may still finish.
var WatchableStatuses = []JobStatus{JobStatusPending, JobStatusPolling}

// ActiveStatuses are all non-terminal states.
var ActiveStatuses = []JobStatus{
	JobStatusPending, JobStatusPolling, JobStatusAudioReady,
	JobStatusImagesReady, JobStatusAssembling, JobStatusUploading,
}

// IsTerminal reports whether no further transitions are allowed
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusComplete || s == JobStatusFailed
}

// Target kinds
const (
	KindArtist = "artist"
	KindVision = "vision"
)

// Event kinds
type EventKind string

const (
	EventComplete EventKind = "complete"
	EventError    EventKind = "error"
)
