package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/bwmarrin/discordgo"

	"github.com/lasa01/extcord-voice/internal/backend"
	"github.com/lasa01/extcord-voice/internal/config"
	"github.com/lasa01/extcord-voice/internal/logging"
	"github.com/lasa01/extcord-voice/internal/store"
	"github.com/lasa01/extcord-voice/internal/voice"
)

func main() {
	sugar := logging.Init()
	defer logging.Sync()

	cfg, err := config.FromEnv()
	if err != nil {
		sugar.Fatalf("config: %v", err)
	}

	// Optional persistent cache tier.
	var kv store.KV
	if cfg.StorePath != "" {
		s, err := store.Open(cfg.StorePath)
		if err != nil {
			sugar.Fatalf("store open: %v", err)
		}
		kv = s
		defer func() { _ = s.Close() }()
		sugar.Infow("persistent cache tier enabled", "path", cfg.StorePath)
	}

	client := backend.NewClient(cfg.BackendURL, cfg.BackendToken)
	phonetics := backend.NewPhoneticCache(client, kv)
	speech := backend.NewSpeechCache(client, kv)
	registry := builtinRegistry()
	index := voice.NewIndex(registry, phonetics, cfg.MinAliasChars)

	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		sugar.Fatalf("discordgo.New: %v", err)
	}
	// Guilds + GuildVoiceStates are sufficient for joining and mapping
	// voice state; no privileged intents needed.
	if dg.Identify.Intents == 0 {
		dg.Identify = discordgo.Identify{Intents: discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates}
	}

	sugar.Infow("opening discord session")
	if err := dg.Open(); err != nil {
		sugar.Fatalf("discord session open failed: %v", err)
	}
	sugar.Infow("discord session opened")

	// Voice connections by room (guild), shared with the sink factory.
	var connMu sync.Mutex
	conns := make(map[string]*discordgo.VoiceConnection)

	players := voice.NewPlayerRegistry(func(room string) voice.OutputSink {
		connMu.Lock()
		vc := conns[room]
		connMu.Unlock()
		sink, err := voice.NewDiscordSink(vc)
		if err != nil {
			sugar.Warnf("sink create failed for room %s: %v", room, err)
			return voice.NopSink{}
		}
		return sink
	})

	names := voice.NewDiscordNames(dg)
	orch := voice.NewOrchestrator(voice.OrchestratorConfig{
		WakeWord:        cfg.WakeWord,
		MatchThreshold:  cfg.MatchThreshold,
		MinCommandChars: cfg.MinCommandChars,
		Default:         cfg.Language,
		Names:           names,
	}, client, phonetics, speech, index, players)

	var listener *voice.Listener
	if cfg.AutoJoin && cfg.GuildID != "" && cfg.VoiceChannelID != "" {
		sugar.Infow("joining voice channel", "guild", cfg.GuildID, "channel", cfg.VoiceChannelID)
		vc, err := dg.ChannelVoiceJoin(cfg.GuildID, cfg.VoiceChannelID, false, false)
		if err != nil {
			sugar.Fatalf("voice join failed: %v", err)
		}
		connMu.Lock()
		conns[cfg.GuildID] = vc
		connMu.Unlock()

		chunker := voice.NewChunker(voice.ChunkerConfig{
			Room:        cfg.GuildID,
			MinDuration: cfg.UtteranceMin,
			MaxDuration: cfg.UtteranceMax,
			IdleTimeout: cfg.UtteranceIdle,
			MaxQueued:   cfg.RecognitionMax,
		}, func(ctx context.Context, u *voice.Utterance) {
			orch.HandleUtterance(ctx, u)
		})
		listener = voice.NewListener(cfg.GuildID, chunker)
		vc.AddHandler(listener.HandleSpeakingUpdate)
		listener.Run(vc)
		sugar.Infow("voice joined, listening", "guild", cfg.GuildID,
			"channel", cfg.VoiceChannelID, "channel_name", names.ChannelName(cfg.VoiceChannelID))
	} else {
		sugar.Infow("auto-join disabled or not configured; idle")
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	sugar.Infow("shutdown signal received, closing resources")

	if listener != nil {
		if err := listener.Close(); err != nil {
			sugar.Warnf("listener close error: %v", err)
		}
	}
	players.Close()

	connMu.Lock()
	for _, vc := range conns {
		if err := vc.Disconnect(); err != nil {
			sugar.Warnf("voice disconnect error: %v", err)
		}
	}
	connMu.Unlock()

	if err := dg.Close(); err != nil {
		sugar.Warnf("discord session close error: %v", err)
	}
	sugar.Info("shutdown complete")
}
