package voice

import (
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/lasa01/extcord-voice/internal/logging"
)

// Listener bridges a Discord voice connection to the chunker: it maps
// SSRCs to user IDs from speaking updates and feeds received opus packets
// into per-speaker captures.
type Listener struct {
	room    string
	chunker *Chunker

	mu      sync.Mutex
	ssrcMap map[uint32]string

	done chan struct{}
	wg   sync.WaitGroup
}

func NewListener(room string, chunker *Chunker) *Listener {
	return &Listener{
		room:    room,
		chunker: chunker,
		ssrcMap: make(map[uint32]string),
		done:    make(chan struct{}),
	}
}

// HandleSpeakingUpdate records the SSRC to user mapping. Register it on the
// voice connection; speaking updates are delivered on the voice websocket,
// not the main gateway.
func (l *Listener) HandleSpeakingUpdate(vc *discordgo.VoiceConnection, su *discordgo.VoiceSpeakingUpdate) {
	l.mu.Lock()
	l.ssrcMap[uint32(su.SSRC)] = su.UserID
	l.mu.Unlock()
	logging.Debugw("mapped SSRC to user", "room", l.room, "ssrc", su.SSRC, "user_id", su.UserID, "speaking", su.Speaking)
}

// Run consumes received packets until the connection's receive channel
// closes or Close is called. Packets whose SSRC has no known user yet are
// dropped; the mapping arrives with the first speaking update.
func (l *Listener) Run(vc *discordgo.VoiceConnection) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for {
			select {
			case <-l.done:
				return
			case pkt, ok := <-vc.OpusRecv:
				if !ok {
					return
				}
				l.mu.Lock()
				userID := l.ssrcMap[pkt.SSRC]
				l.mu.Unlock()
				if userID == "" {
					continue
				}
				l.chunker.Push(userID, pkt.Opus)
			}
		}
	}()
}

// Close stops the receive loop and tears down the chunker, which releases
// open captures and resolves outstanding throttle tickets as skipped.
func (l *Listener) Close() error {
	close(l.done)
	l.wg.Wait()
	return l.chunker.Close()
}
