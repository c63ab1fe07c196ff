package voice

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/lasa01/extcord-voice/internal/backend"
	"github.com/lasa01/extcord-voice/internal/logging"
)

// AliasEntry maps one phonetic alias to its command. Entries keep their
// construction order so resolution ties go to the first-seen alias.
type AliasEntry struct {
	Alias    string
	Phonetic string
	Command  Command
}

type roomLanguageKey struct {
	room     string
	language string
}

// Index builds and caches phonetic alias indexes derived from the external
// command registry: one per language, cloned per (room, language) on first
// use. Both levels are immutable once built and live for the process
// lifetime; the command set is assumed static at runtime. The per-room clone
// exists so rooms can diverge later without changing callers.
type Index struct {
	registry  Registry
	phonetics *backend.PhoneticCache
	minChars  int

	mu         sync.Mutex
	byLanguage map[string][]AliasEntry
	byRoom     map[roomLanguageKey][]AliasEntry
}

func NewIndex(registry Registry, phonetics *backend.PhoneticCache, minAliasChars int) *Index {
	return &Index{
		registry:   registry,
		phonetics:  phonetics,
		minChars:   minAliasChars,
		byLanguage: make(map[string][]AliasEntry),
		byRoom:     make(map[roomLanguageKey][]AliasEntry),
	}
}

// ForRoom returns the alias index for (room, language), building the
// language-level index and the room clone on first use.
func (x *Index) ForRoom(ctx context.Context, room, language string) ([]AliasEntry, error) {
	key := roomLanguageKey{room: room, language: language}
	x.mu.Lock()
	if entries, ok := x.byRoom[key]; ok {
		x.mu.Unlock()
		return entries, nil
	}
	x.mu.Unlock()

	base, err := x.forLanguage(ctx, language)
	if err != nil {
		return nil, err
	}
	clone := make([]AliasEntry, len(base))
	copy(clone, base)

	x.mu.Lock()
	if entries, ok := x.byRoom[key]; ok {
		// Another utterance built the clone concurrently; keep the first.
		x.mu.Unlock()
		return entries, nil
	}
	x.byRoom[key] = clone
	x.mu.Unlock()
	return clone, nil
}

func (x *Index) forLanguage(ctx context.Context, language string) ([]AliasEntry, error) {
	x.mu.Lock()
	if entries, ok := x.byLanguage[language]; ok {
		x.mu.Unlock()
		return entries, nil
	}
	x.mu.Unlock()

	var entries []AliasEntry
	for _, cmd := range x.registry.Commands() {
		if !cmd.VoicePermitted() || cmd.Group() {
			continue
		}
		names := append([]string{cmd.Name(language)}, cmd.Aliases(language)...)
		for _, name := range names {
			name = strings.ToLower(strings.TrimSpace(name))
			if utf8.RuneCountInString(name) < x.minChars {
				continue
			}
			phonetic, err := x.phonetics.Get(ctx, language, name, true)
			if err != nil {
				return nil, err
			}
			entries = append(entries, AliasEntry{Alias: name, Phonetic: phonetic, Command: cmd})
		}
	}
	logging.Infow("built voice alias index", "language", language, "aliases", len(entries))

	x.mu.Lock()
	if built, ok := x.byLanguage[language]; ok {
		x.mu.Unlock()
		return built, nil
	}
	x.byLanguage[language] = entries
	x.mu.Unlock()
	return entries, nil
}
