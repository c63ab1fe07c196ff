package voice

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/lasa01/extcord-voice/internal/backend"
	"github.com/lasa01/extcord-voice/internal/logging"
)

// OrchestratorConfig tunes wake detection and command resolution.
type OrchestratorConfig struct {
	WakeWord        string
	MatchThreshold  float64
	MinCommandChars int

	// Language resolves the recognition language for a room. Defaults to a
	// fixed language when nil.
	Language func(room string) string
	Default  string

	// Names resolves speaker IDs to display names for log lines. Optional.
	Names NameResolver
}

// Orchestrator drives one utterance through wake-check, command resolution,
// execution and spoken response.
type Orchestrator struct {
	cfg       OrchestratorConfig
	client    *backend.Client
	phonetics *backend.PhoneticCache
	speech    *backend.SpeechCache
	index     *Index
	players   *PlayerRegistry
}

func NewOrchestrator(cfg OrchestratorConfig, client *backend.Client, phonetics *backend.PhoneticCache,
	speech *backend.SpeechCache, index *Index, players *PlayerRegistry) *Orchestrator {
	if cfg.Default == "" {
		cfg.Default = "en"
	}
	if cfg.Names == nil {
		cfg.Names = NopNames{}
	}
	return &Orchestrator{
		cfg:       cfg,
		client:    client,
		phonetics: phonetics,
		speech:    speech,
		index:     index,
		players:   players,
	}
}

func (o *Orchestrator) language(room string) string {
	if o.cfg.Language != nil {
		if l := o.cfg.Language(room); l != "" {
			return l
		}
	}
	return o.cfg.Default
}

// HandleUtterance runs the full recognition-to-response flow for one
// encoded utterance. It blocks until handling completes; the chunker's
// throttle relies on that to keep one recognition in flight per speaker.
func (o *Orchestrator) HandleUtterance(ctx context.Context, u *Utterance) {
	language := o.language(u.Room)
	tr, err := o.client.Recognize(ctx, language, u.Encoded, false)
	if err != nil {
		logging.Warnw("recognition failed", "room", u.Room, "speaker", u.Speaker, "err", err, "correlation_id", u.CorrelationID)
		return
	}
	o.handleTranscription(ctx, u, language, tr)
}

func (o *Orchestrator) handleTranscription(ctx context.Context, u *Utterance, language string, tr backend.Transcription) {
	plainWords := strings.Fields(tr.Text)
	phoneticWords := strings.Fields(tr.Phonetic)
	if len(plainWords) == 0 || len(phoneticWords) == 0 {
		return
	}

	wakePhonetic, err := o.phonetics.Get(ctx, language, o.cfg.WakeWord, true)
	if err != nil {
		logging.Warnw("wake word phonetics unavailable", "language", language, "err", err, "correlation_id", u.CorrelationID)
		return
	}
	wake := MatchPrefix(plainWords, phoneticWords, wakePhonetic)
	if wake.Similarity < o.cfg.MatchThreshold {
		logging.Debugw("utterance not addressed to bot", "room", u.Room, "speaker", u.Speaker,
			"similarity", wake.Similarity, "correlation_id", u.CorrelationID)
		return
	}
	rest := strings.TrimSpace(wake.Rest)
	if utf8.RuneCountInString(rest) < o.cfg.MinCommandChars {
		logging.Debugw("command after wake word too short", "room", u.Room, "speaker", u.Speaker,
			"rest", rest, "correlation_id", u.CorrelationID)
		return
	}

	player := o.players.Get(u.Room)
	lease, err := player.BeginUse()
	if err != nil {
		// Torn down between lookup and lease; the registry hands out a
		// fresh instance.
		player = o.players.Get(u.Room)
		if lease, err = player.BeginUse(); err != nil {
			logging.Warnw("room output unavailable", "room", u.Room, "err", err, "correlation_id", u.CorrelationID)
			return
		}
	}
	defer player.EndUse(lease)

	entries, err := o.index.ForRoom(ctx, u.Room, language)
	if err != nil {
		logging.Warnw("alias index unavailable", "room", u.Room, "language", language, "err", err, "correlation_id", u.CorrelationID)
		return
	}
	restPlain := strings.Fields(wake.Rest)
	restPhonetic := strings.Fields(wake.RestPhonetic)
	best, bestEntry := o.resolve(restPlain, restPhonetic, entries)

	if bestEntry == nil || best.Similarity < o.cfg.MatchThreshold {
		logging.Infow("no command matched", "room", u.Room, "speaker", u.Speaker, "text", rest, "correlation_id", u.CorrelationID)
		o.respond(ctx, u, language, player, []Part{
			Static("Invalid command "),
			Dynamic(rest),
		})
		return
	}

	logging.Infow("voice command resolved", "room", u.Room, "speaker", u.Speaker,
		"speaker_name", o.cfg.Names.UserName(u.Speaker),
		"alias", bestEntry.Alias, "similarity", best.Similarity,
		"arguments", best.Rest, "correlation_id", u.CorrelationID)

	exec := &Execution{
		Room:      u.Room,
		Speaker:   u.Speaker,
		Language:  language,
		Arguments: strings.TrimSpace(best.Rest),
		respond: func(ctx context.Context, parts []Part) {
			o.respond(ctx, u, language, player, parts)
		},
	}
	if err := bestEntry.Command.Execute(ctx, exec); err != nil {
		logging.Warnw("command execution failed", "room", u.Room, "alias", bestEntry.Alias, "err", err, "correlation_id", u.CorrelationID)
	}

	if exec.accurateRequest {
		o.accurateRecheck(ctx, u, language, bestEntry, exec)
	}
}

// accurateRecheck re-runs recognition over the retained audio with the
// higher-accuracy model and invokes the handler a second time with refined
// arguments. Wake and alias resolution are not repeated; the prefix
// extraction is re-applied against the already-resolved alias. Failures are
// logged and never abort the flow.
func (o *Orchestrator) accurateRecheck(ctx context.Context, u *Utterance, language string, entry *AliasEntry, prev *Execution) {
	tr, err := o.client.Recognize(ctx, language, u.Encoded, true)
	if err != nil {
		logging.Warnw("accurate recognition failed", "room", u.Room, "err", err, "correlation_id", u.CorrelationID)
		return
	}
	plainWords := strings.Fields(tr.Text)
	phoneticWords := strings.Fields(tr.Phonetic)

	wakePhonetic, err := o.phonetics.Get(ctx, language, o.cfg.WakeWord, true)
	if err != nil {
		logging.Warnw("wake word phonetics unavailable on recheck", "err", err, "correlation_id", u.CorrelationID)
		return
	}
	wake := MatchPrefix(plainWords, phoneticWords, wakePhonetic)
	alias := MatchPrefix(strings.Fields(wake.Rest), strings.Fields(wake.RestPhonetic), entry.Phonetic)

	exec := &Execution{
		Room:      u.Room,
		Speaker:   u.Speaker,
		Language:  language,
		Arguments: strings.TrimSpace(alias.Rest),
		Accurate:  true,
		respond:   prev.respond,
	}
	logging.Debugw("accurate recheck arguments", "room", u.Room, "arguments", exec.Arguments, "correlation_id", u.CorrelationID)
	if err := entry.Command.Execute(ctx, exec); err != nil {
		logging.Warnw("accurate command execution failed", "room", u.Room, "alias", entry.Alias, "err", err, "correlation_id", u.CorrelationID)
	}
}

// resolve runs the prefix matcher once per alias and picks the entry with
// maximal similarity. Ties keep the first-seen entry in index order; there
// is deliberately no secondary tie-break.
func (o *Orchestrator) resolve(plainWords, phoneticWords []string, entries []AliasEntry) (PrefixMatch, *AliasEntry) {
	var best PrefixMatch
	var bestEntry *AliasEntry
	for i := range entries {
		m := MatchPrefix(plainWords, phoneticWords, entries[i].Phonetic)
		if bestEntry == nil || m.Similarity > best.Similarity {
			best = m
			bestEntry = &entries[i]
		}
	}
	return best, bestEntry
}

// respond synthesizes each part and enqueues the clips, in order, on the
// room's player, waiting for the last before returning. Static parts use the
// persistent speech tier; dynamic parts stay in memory. An unready or
// destroyed player drops the response silently.
func (o *Orchestrator) respond(ctx context.Context, u *Utterance, language string, player *Player, parts []Part) {
	var last <-chan error
	for _, part := range parts {
		text := strings.TrimSpace(part.Text)
		if text == "" {
			continue
		}
		clip, err := o.speech.Get(ctx, language, text, !part.Dynamic)
		if err != nil {
			logging.Warnw("speech synthesis failed", "room", u.Room, "err", err, "correlation_id", u.CorrelationID)
			return
		}
		if clip == nil {
			continue
		}
		done, err := player.Enqueue(clip)
		if err != nil {
			logging.Debugw("dropping response, output unavailable", "room", u.Room, "err", err, "correlation_id", u.CorrelationID)
			return
		}
		last = done
	}
	if last == nil {
		return
	}
	select {
	case err := <-last:
		if err != nil {
			logging.Debugw("response playback did not complete", "room", u.Room, "err", err, "correlation_id", u.CorrelationID)
		}
	case <-ctx.Done():
	}
}
