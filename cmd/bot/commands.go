package main

import (
	"context"

	"github.com/lasa01/extcord-voice/internal/voice"
)

// builtinRegistry returns the commands compiled into the bot binary. In a
// full deployment the registry is provided by the surrounding command
// framework; ping gives a minimal end-to-end check of the voice pipeline.
func builtinRegistry() voice.Registry {
	return staticRegistry{
		&pingCommand{},
	}
}

type staticRegistry []voice.Command

func (r staticRegistry) Commands() []voice.Command { return r }

type pingCommand struct{}

func (p *pingCommand) Name(language string) string      { return "ping" }
func (p *pingCommand) Aliases(language string) []string { return nil }
func (p *pingCommand) VoicePermitted() bool             { return true }
func (p *pingCommand) Group() bool                      { return false }

func (p *pingCommand) Execute(ctx context.Context, exec *voice.Execution) error {
	exec.Respond(ctx, voice.Static("Pong"))
	return nil
}
