package voice

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lasa01/extcord-voice/internal/backend"
	"github.com/lasa01/extcord-voice/internal/logging"
)

// ChunkerConfig tunes utterance segmentation and per-speaker throttling.
type ChunkerConfig struct {
	Room string

	// MinDuration/MaxDuration bound accepted utterances; captures outside
	// the range are discarded silently.
	MinDuration time.Duration
	MaxDuration time.Duration

	// IdleTimeout closes a capture after no new audio arrives for this long.
	IdleTimeout time.Duration

	// MaxQueued bounds the per-speaker FIFO of waiting recognition tickets.
	MaxQueued int
}

// DispatchFunc receives an encoded utterance once its recognition ticket
// resolved "proceed". The speaker's next ticket is not released until it
// returns, so implementations run the full recognition cycle inline.
type DispatchFunc func(ctx context.Context, u *Utterance)

// Chunker segments each speaker's live audio stream into discrete bounded
// utterances and gates how many are recognized concurrently.
type Chunker struct {
	cfg      ChunkerConfig
	dispatch DispatchFunc
	throttle *throttle

	mu       sync.Mutex
	captures map[string]*capture

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	dispatched int64
	skipped    int64
	discarded  int64
}

// NewChunker starts the background flusher. Call Close on teardown.
func NewChunker(cfg ChunkerConfig, dispatch DispatchFunc) *Chunker {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Chunker{
		cfg:      cfg,
		dispatch: dispatch,
		throttle: newThrottle(cfg.MaxQueued),
		captures: make(map[string]*capture),
		ctx:      ctx,
		cancel:   cancel,
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.flushIdle()
			}
		}
	}()
	return c
}

// Push appends one raw audio packet to the speaker's open capture, opening
// a new capture on speech-activity start.
func (c *Chunker) Push(speaker string, packet []byte) {
	if len(packet) == 0 {
		return
	}
	now := time.Now()
	c.mu.Lock()
	cp, ok := c.captures[speaker]
	if !ok {
		cp = &capture{started: now, correlationID: uuid.NewString()}
		c.captures[speaker] = cp
		logging.Debugw("capture opened", "room", c.cfg.Room, "speaker", speaker, "correlation_id", cp.correlationID)
	}
	cp.packets = append(cp.packets, append([]byte(nil), packet...))
	cp.last = now
	c.mu.Unlock()
}

// flushIdle closes captures whose inactivity exceeded the idle timeout.
func (c *Chunker) flushIdle() {
	now := time.Now()
	closed := make(map[string]*capture)
	c.mu.Lock()
	for speaker, cp := range c.captures {
		if now.Sub(cp.last) >= c.cfg.IdleTimeout {
			closed[speaker] = cp
			delete(c.captures, speaker)
		}
	}
	c.mu.Unlock()
	for speaker, cp := range closed {
		c.finalize(speaker, cp)
	}
}

// finalize validates a closed capture and, when acceptable, runs it through
// the speaker's recognition throttle.
func (c *Chunker) finalize(speaker string, cp *capture) {
	duration := cp.last.Sub(cp.started)
	if len(cp.packets) == 0 || duration < c.cfg.MinDuration || duration > c.cfg.MaxDuration {
		atomic.AddInt64(&c.discarded, 1)
		logging.Debugw("discarding utterance outside duration bounds",
			"room", c.cfg.Room, "speaker", speaker, "duration_ms", duration.Milliseconds(),
			"packets", len(cp.packets), "correlation_id", cp.correlationID)
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticket := c.throttle.acquire(speaker)
		proceed := <-ticket
		if !proceed {
			atomic.AddInt64(&c.skipped, 1)
			logging.Debugw("utterance skipped by throttle", "room", c.cfg.Room, "speaker", speaker, "correlation_id", cp.correlationID)
			return
		}
		defer c.throttle.release(speaker)

		encoded, err := backend.EncodeUtterance(cp.packets)
		if err != nil {
			logging.Errorw("utterance encode failed", "room", c.cfg.Room, "speaker", speaker, "err", err, "correlation_id", cp.correlationID)
			return
		}
		atomic.AddInt64(&c.dispatched, 1)
		c.dispatch(c.ctx, &Utterance{
			Room:          c.cfg.Room,
			Speaker:       speaker,
			CorrelationID: cp.correlationID,
			Encoded:       encoded,
			Started:       cp.started,
			Ended:         cp.last,
		})
	}()
}

// Stats returns a snapshot of the chunker counters.
func (c *Chunker) Stats() ChunkerStats {
	return ChunkerStats{
		Dispatched: atomic.LoadInt64(&c.dispatched),
		Skipped:    atomic.LoadInt64(&c.skipped),
		Discarded:  atomic.LoadInt64(&c.discarded),
	}
}

// Close releases open captures without dispatching them, resolves all
// outstanding tickets "skip", and waits for in-flight work.
func (c *Chunker) Close() error {
	c.cancel()
	c.mu.Lock()
	n := len(c.captures)
	c.captures = make(map[string]*capture)
	c.mu.Unlock()
	if n > 0 {
		logging.Debugw("dropped open captures on close", "room", c.cfg.Room, "count", n)
	}
	c.throttle.drain()
	c.wg.Wait()
	return nil
}
