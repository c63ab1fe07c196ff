package voice

import (
	"context"
	"errors"
	"sync"

	"github.com/lasa01/extcord-voice/internal/logging"
)

var (
	// ErrPlayerDestroyed rejects enqueues and pending completion signals
	// when the room's player is torn down.
	ErrPlayerDestroyed = errors.New("player destroyed")
	// ErrSinkNotReady rejects enqueues while the output connection is down.
	ErrSinkNotReady = errors.New("output sink not ready")
)

// OutputSink is the shared per-room audio output. Play blocks until the clip
// has fully played or the context is canceled; a single player goroutine
// calls it, so implementations need not be reentrant.
type OutputSink interface {
	Ready() bool
	Play(ctx context.Context, clip []byte) error
	Close() error
}

// pendingClip is one queued clip: a monotonic sequence number, the audio, and
// a single-shot completion signal.
type pendingClip struct {
	seq      uint64
	data     []byte
	done     chan error
	resolved bool
}

func (p *pendingClip) resolve(err error) {
	if p.resolved {
		return
	}
	p.resolved = true
	p.done <- err
	close(p.done)
}

// Player serializes playback of synthesized clips on one room's output sink.
// Clips play strictly in enqueue order regardless of which command produced
// them; each enqueue gets a completion signal tied to its own sequence
// number. Usage leases keep the player alive while command executions that
// may still need to speak are in flight.
type Player struct {
	room string
	sink OutputSink

	mu        sync.Mutex
	queue     []*pendingClip
	nextSeq   uint64
	playing   bool
	destroyed bool
	leases    map[uint64]struct{}
	nextLease uint64

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// onDestroy lets the registry drop its reference when the player tears
	// itself down after the last lease ends.
	onDestroy func(*Player)
}

func newPlayer(room string, sink OutputSink, onDestroy func(*Player)) *Player {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Player{
		room:      room,
		sink:      sink,
		leases:    make(map[uint64]struct{}),
		wake:      make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
		onDestroy: onDestroy,
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// Enqueue appends a clip to the playback queue and returns its completion
// signal. The signal receives nil once the clip has fully played, or an
// error if the sink failed or the player was destroyed first.
func (p *Player) Enqueue(clip []byte) (<-chan error, error) {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return nil, ErrPlayerDestroyed
	}
	if !p.sink.Ready() {
		p.mu.Unlock()
		return nil, ErrSinkNotReady
	}
	pc := &pendingClip{seq: p.nextSeq, data: clip, done: make(chan error, 1)}
	p.nextSeq++
	p.queue = append(p.queue, pc)
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return pc.done, nil
}

// run is the single consumer: it pops the queue head, plays it, and resolves
// its completion signal. A sink error rejects every still-pending completion
// signal, current and queued alike, and playback continues with the next
// queued clip.
func (p *Player) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.wake:
		}
		for {
			p.mu.Lock()
			if p.destroyed || len(p.queue) == 0 {
				p.playing = false
				p.mu.Unlock()
				break
			}
			pc := p.queue[0]
			p.queue = p.queue[1:]
			p.playing = true
			p.mu.Unlock()

			err := p.sink.Play(p.ctx, pc.data)
			p.mu.Lock()
			if err != nil {
				logging.Warnw("playback error, rejecting pending completions", "room", p.room, "seq", pc.seq, "err", err)
				pc.resolve(err)
				for _, q := range p.queue {
					q.resolve(err)
				}
			} else {
				pc.resolve(nil)
			}
			p.mu.Unlock()
		}
	}
}

// BeginUse takes a usage lease. Every logical execution that may need to
// speak must hold one before producing audio. Fails with ErrPlayerDestroyed
// when the player was torn down between registry lookup and lease; callers
// should re-fetch from the registry.
func (p *Player) BeginUse() (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return 0, ErrPlayerDestroyed
	}
	id := p.nextLease
	p.nextLease++
	p.leases[id] = struct{}{}
	return id, nil
}

// EndUse releases a lease. When the active-lease set becomes empty the
// player tears itself down; the registry hands out a fresh instance on the
// next lookup.
func (p *Player) EndUse(id uint64) {
	p.mu.Lock()
	delete(p.leases, id)
	empty := len(p.leases) == 0
	p.mu.Unlock()
	if empty {
		p.Destroy()
	}
}

// Destroy stops playback immediately, rejects all pending completion
// signals, and closes the sink. Safe to call more than once.
func (p *Player) Destroy() {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}
	p.destroyed = true
	pending := p.queue
	p.queue = nil
	p.mu.Unlock()

	p.cancel()
	for _, q := range pending {
		p.mu.Lock()
		q.resolve(ErrPlayerDestroyed)
		p.mu.Unlock()
	}
	p.wg.Wait()
	if err := p.sink.Close(); err != nil {
		logging.Debugw("sink close error", "room", p.room, "err", err)
	}
	if p.onDestroy != nil {
		p.onDestroy(p)
	}
	logging.Debugw("player destroyed", "room", p.room)
}

// PlayerRegistry owns exactly one live player per room, created on demand.
// A destroyed player is transparently replaced on the next lookup.
type PlayerRegistry struct {
	newSink func(room string) OutputSink

	mu      sync.Mutex
	players map[string]*Player
}

func NewPlayerRegistry(newSink func(room string) OutputSink) *PlayerRegistry {
	return &PlayerRegistry{
		newSink: newSink,
		players: make(map[string]*Player),
	}
}

// Get returns the room's player, creating one if none exists or the previous
// instance was destroyed.
func (r *PlayerRegistry) Get(room string) *Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.players[room]; ok {
		p.mu.Lock()
		alive := !p.destroyed
		p.mu.Unlock()
		if alive {
			return p
		}
	}
	p := newPlayer(room, r.newSink(room), func(dead *Player) {
		r.mu.Lock()
		if r.players[room] == dead {
			delete(r.players, room)
		}
		r.mu.Unlock()
	})
	r.players[room] = p
	return p
}

// Destroy tears down the room's player if one exists.
func (r *PlayerRegistry) Destroy(room string) {
	r.mu.Lock()
	p := r.players[room]
	delete(r.players, room)
	r.mu.Unlock()
	if p != nil {
		p.Destroy()
	}
}

// Close destroys every live player.
func (r *PlayerRegistry) Close() {
	r.mu.Lock()
	players := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, p)
	}
	r.players = make(map[string]*Player)
	r.mu.Unlock()
	for _, p := range players {
		p.Destroy()
	}
}
