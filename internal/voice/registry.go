package voice

import (
	"context"
	"strings"
)

// Registry exposes the externally-managed command set. The command
// registration, permission and localization machinery lives outside this
// module; the voice pipeline only enumerates commands and executes them.
type Registry interface {
	Commands() []Command
}

// Command is one executable command as seen by the voice pipeline.
type Command interface {
	// Name returns the localized primary name for the language.
	Name(language string) string
	// Aliases returns the localized aliases for the language.
	Aliases(language string) []string
	// VoicePermitted reports whether the command may be invoked by voice.
	VoicePermitted() bool
	// Group reports whether this is a compound/group command. Group
	// commands are never voice-resolvable.
	Group() bool
	// Execute runs the command with the voice execution context.
	Execute(ctx context.Context, exec *Execution) error
}

// Part is one element of a response message template. Static parts are
// language-wide phrases safe to cache persistently; dynamic parts carry
// caller-supplied values and are only cached in memory.
type Part struct {
	Text    string
	Dynamic bool
}

// Static wraps a fixed template phrase.
func Static(text string) Part { return Part{Text: text} }

// Dynamic wraps caller-supplied text.
func Dynamic(text string) Part { return Part{Text: text, Dynamic: true} }

// Execution is the voice-specific execution context handed to a command
// handler. It carries the resolved arguments and the respond capability.
type Execution struct {
	Room     string
	Speaker  string
	Language string

	// Arguments is the utterance text remaining after the wake word and the
	// matched alias.
	Arguments string

	// Accurate is true on the second handler invocation after a requested
	// high-accuracy recognition pass.
	Accurate bool

	respond         func(ctx context.Context, parts []Part)
	accurateRequest bool
}

// Respond speaks the given message parts on the room's shared audio output,
// in order, returning once the last clip has played. Only the text up to and
// including the first line break is spoken; voice output cannot carry
// structured multi-line content. Failures never surface to the handler: if
// the output is not ready or was destroyed, the response is dropped with a
// debug log.
func (e *Execution) Respond(ctx context.Context, parts ...Part) {
	if e.respond == nil {
		return
	}
	e.respond(ctx, truncateAtLineBreak(parts))
}

// RequestAccurate asks the orchestrator to re-run recognition over the same
// captured audio with the higher-accuracy model after this handler returns,
// then invoke the handler again with refined arguments and Accurate set.
func (e *Execution) RequestAccurate() { e.accurateRequest = true }

// truncateAtLineBreak keeps parts up to and including the first line break
// and drops everything after it.
func truncateAtLineBreak(parts []Part) []Part {
	out := make([]Part, 0, len(parts))
	for _, p := range parts {
		if i := strings.IndexByte(p.Text, '\n'); i >= 0 {
			p.Text = p.Text[:i+1]
			out = append(out, p)
			return out
		}
		out = append(out, p)
	}
	return out
}
