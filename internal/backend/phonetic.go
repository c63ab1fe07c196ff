package backend

import (
	"context"
	"sync"

	"github.com/lasa01/extcord-voice/internal/logging"
	"github.com/lasa01/extcord-voice/internal/store"
)

type phoneticKey struct {
	language string
	text     string
}

// PhoneticCache memoizes Client.Phonetic calls. Entries are write-once:
// once a phonetic form is stored for (language, text) it is never replaced.
// Concurrent misses on the same key may both hit the backend; both converge
// to the same stored value, so no per-key locking is done.
type PhoneticCache struct {
	client *Client
	kv     store.KV // optional persistent tier, may be nil

	mu  sync.Mutex
	mem map[phoneticKey]string
}

func NewPhoneticCache(client *Client, kv store.KV) *PhoneticCache {
	return &PhoneticCache{
		client: client,
		kv:     kv,
		mem:    make(map[phoneticKey]string),
	}
}

// Get returns the phonetic transcription of text. With cached=false the
// backend is always called directly, bypassing both tiers; use that for
// one-off live transcriptions that are not reusable. With cached=true the
// in-memory map is consulted first, then the persistent tier, then the
// backend, populating both on the way back.
func (p *PhoneticCache) Get(ctx context.Context, language, text string, cached bool) (string, error) {
	if !cached {
		return p.client.Phonetic(ctx, language, text)
	}
	key := phoneticKey{language: language, text: text}
	p.mu.Lock()
	if v, ok := p.mem[key]; ok {
		p.mu.Unlock()
		return v, nil
	}
	p.mu.Unlock()

	if p.kv != nil {
		if v, ok, err := p.kv.GetPhonetic(ctx, language, text); err != nil {
			logging.Warnw("phonetic store read failed", "language", language, "err", err)
		} else if ok {
			p.remember(key, v)
			return v, nil
		}
	}

	v, err := p.client.Phonetic(ctx, language, text)
	if err != nil {
		return "", err
	}
	if p.kv != nil {
		if err := p.kv.PutPhonetic(ctx, language, text, v); err != nil {
			logging.Warnw("phonetic store write failed", "language", language, "err", err)
		}
	}
	p.remember(key, v)
	return v, nil
}

func (p *PhoneticCache) remember(key phoneticKey, v string) {
	p.mu.Lock()
	if _, ok := p.mem[key]; !ok {
		p.mem[key] = v
	}
	p.mu.Unlock()
}
