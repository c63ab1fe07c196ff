package voice

import (
	"time"
)

// Utterance is one segmented, encoded chunk of a speaker's audio, ready for
// recognition. The encoded payload is retained until handling completes so a
// handler can request a second, higher-accuracy recognition pass.
type Utterance struct {
	Room          string
	Speaker       string
	CorrelationID string
	Encoded       []byte
	Started       time.Time
	Ended         time.Time
}

// Duration is the wall-clock span of the capture.
func (u *Utterance) Duration() time.Duration { return u.Ended.Sub(u.Started) }

// capture accumulates raw audio packets for one speaker between
// speech-activity start and the inactivity timeout.
type capture struct {
	packets       [][]byte
	started       time.Time
	last          time.Time
	correlationID string
}

// ChunkerStats is a snapshot of the chunker's atomic counters.
type ChunkerStats struct {
	Dispatched int64
	Skipped    int64
	Discarded  int64
}
