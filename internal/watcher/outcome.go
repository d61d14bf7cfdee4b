package watcher

import (
	"fmt"
	"time"
)

// OutcomeKind tags the result of one completion check
type OutcomeKind int

const (
	OutcomeRetry OutcomeKind = iota
	OutcomeDone
	OutcomeFailed
	OutcomeSkipped
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeRetry:
		return "retry"
	case OutcomeDone:
		return "done"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is Retry{After, Remaining} | Done{AudioURL} | Failed{Reason}.
// Skipped marks a poll for a job that is gone or already claimed.
// The scheduler acts on the tag; nothing is signalled through errors.
type Outcome struct {
	Kind      OutcomeKind
	After     time.Duration
	Remaining int
	AudioURL  string
	Reason    string
}

func Retry(after time.Duration, remaining int) Outcome {
	return Outcome{Kind: OutcomeRetry, After: after, Remaining: remaining}
}

func Done(audioURL string) Outcome {
	return Outcome{Kind: OutcomeDone, AudioURL: audioURL}
}

func Failed(format string, args ...interface{}) Outcome {
	return Outcome{Kind: OutcomeFailed, Reason: fmt.Sprintf(format, args...)}
}

func Skipped() Outcome {
	return Outcome{Kind: OutcomeSkipped}
}
