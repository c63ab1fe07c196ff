package backend

import (
	"context"
	"strings"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/lasa01/extcord-voice/internal/logging"
	"github.com/lasa01/extcord-voice/internal/store"
)

// speechMemEntries bounds the in-memory clip tier. Free-form spoken text is
// not reusable enough to justify unbounded growth.
const speechMemEntries = 64

type speechKey struct {
	language string
	text     string
}

// SpeechCache memoizes Client.Speech calls behind a bounded LRU plus an
// optional persistent tier. The persistent tier is only used for cached=true
// lookups: static, language-wide phrase templates are safe to persist and
// share across rooms and restarts, while caller-supplied dynamic text stays
// in the bounded in-memory tier only.
type SpeechCache struct {
	client *Client
	kv     store.KV // optional, may be nil
	mem    *lru.Cache[speechKey, []byte]
}

func NewSpeechCache(client *Client, kv store.KV) *SpeechCache {
	mem, err := lru.New[speechKey, []byte](speechMemEntries)
	if err != nil {
		// lru.New only fails for a non-positive size.
		panic(err)
	}
	return &SpeechCache{client: client, kv: kv, mem: mem}
}

// Get synthesizes text and returns the raw encoded audio, or (nil, nil) when
// the text carries nothing speakable. The in-memory tier is consulted and
// populated regardless of cached; cached additionally consults and populates
// the persistent tier.
func (s *SpeechCache) Get(ctx context.Context, language, text string, cached bool) ([]byte, error) {
	normalized := normalizeSpeechText(text)
	if !speakable(normalized) {
		logging.Debugw("speech text not speakable, skipping synthesis", "language", language)
		return nil, nil
	}
	key := speechKey{language: language, text: normalized}
	if clip, ok := s.mem.Get(key); ok {
		return clip, nil
	}
	if cached && s.kv != nil {
		if clip, ok, err := s.kv.GetSpeech(ctx, language, normalized); err != nil {
			logging.Warnw("speech store read failed", "language", language, "err", err)
		} else if ok {
			s.mem.Add(key, clip)
			return clip, nil
		}
	}
	clip, err := s.client.Speech(ctx, language, normalized)
	if err != nil {
		return nil, err
	}
	if cached && s.kv != nil {
		if err := s.kv.PutSpeech(ctx, language, normalized, clip); err != nil {
			logging.Warnw("speech store write failed", "language", language, "err", err)
		}
	}
	s.mem.Add(key, clip)
	return clip, nil
}

// normalizeSpeechText strips everything except letters, digits, whitespace,
// commas and periods so equivalent phrasings share a cache key and the
// synthesizer never sees markup.
func normalizeSpeechText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || r == ',' || r == '.' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// speakable reports whether text still carries pronounceable content after
// commas and periods are also discounted. Guards against synthesizing
// punctuation-only or unresolved-template text.
func speakable(text string) bool {
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
