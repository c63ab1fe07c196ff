package voice

import (
	"sync"

	"github.com/lasa01/extcord-voice/internal/logging"
)

// throttle limits each speaker to one in-flight recognition at a time.
// Additional utterances wait on a FIFO of tickets bounded by maxQueued;
// when the bound is exceeded the oldest tickets are evicted and resolved
// "skip". Each ticket is a buffered channel carrying a single verdict:
// true to proceed, false to skip.
type throttle struct {
	maxQueued int

	mu       sync.Mutex
	speakers map[string]*throttleState
}

type throttleState struct {
	inFlight bool
	waiters  []chan bool
}

func newThrottle(maxQueued int) *throttle {
	return &throttle{
		maxQueued: maxQueued,
		speakers:  make(map[string]*throttleState),
	}
}

// acquire returns a ticket for the speaker. The caller must receive the
// verdict from the returned channel and, when it is true, call release once
// the recognition cycle finishes.
func (t *throttle) acquire(speaker string) <-chan bool {
	ticket := make(chan bool, 1)
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.speakers[speaker]
	if !ok {
		st = &throttleState{}
		t.speakers[speaker] = st
	}
	if !st.inFlight {
		st.inFlight = true
		ticket <- true
		return ticket
	}
	st.waiters = append(st.waiters, ticket)
	for len(st.waiters) > t.maxQueued {
		oldest := st.waiters[0]
		st.waiters = st.waiters[1:]
		oldest <- false
		logging.Debugw("recognition queue full, skipping oldest utterance", "speaker", speaker)
	}
	return ticket
}

// release finishes the speaker's in-flight cycle: the next waiting ticket
// (if any) is resolved "proceed", otherwise the in-flight flag clears.
func (t *throttle) release(speaker string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.speakers[speaker]
	if !ok {
		return
	}
	if len(st.waiters) > 0 {
		next := st.waiters[0]
		st.waiters = st.waiters[1:]
		next <- true
		return
	}
	st.inFlight = false
	delete(t.speakers, speaker)
}

// drain resolves every outstanding ticket "skip". Used on teardown.
func (t *throttle) drain() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for speaker, st := range t.speakers {
		for _, w := range st.waiters {
			w <- false
		}
		st.waiters = nil
		delete(t.speakers, speaker)
	}
}
