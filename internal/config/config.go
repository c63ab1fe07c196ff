// Package config collects the environment-derived settings for the voice
// command pipeline in one place so constructors take a struct instead of
// reading the environment ad hoc.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every tunable of the bot. Zero values are replaced with the
// defaults below by FromEnv.
type Config struct {
	// Discord gateway.
	DiscordToken   string
	GuildID        string
	VoiceChannelID string
	AutoJoin       bool

	// Speech backend (ASR / phonetics / TTS over HTTP).
	BackendURL   string
	BackendToken string

	// Language used for recognition and synthesis.
	Language string

	// Wake word and matching.
	WakeWord        string
	MatchThreshold  float64
	MinCommandChars int
	MinAliasChars   int

	// Utterance segmentation and per-speaker throttling.
	UtteranceMin   time.Duration
	UtteranceMax   time.Duration
	UtteranceIdle  time.Duration
	RecognitionMax int // max queued recognition tickets per speaker

	// Optional persistent cache tier. Empty disables it.
	StorePath string
}

// Defaults mirror the values the hosted bot shipped with.
const (
	DefaultLanguage        = "en"
	DefaultWakeWord        = "bot"
	DefaultMatchThreshold  = 0.8
	DefaultMinCommandChars = 3
	DefaultMinAliasChars   = 2
	DefaultUtteranceMin    = 500 * time.Millisecond
	DefaultUtteranceMax    = 10 * time.Second
	DefaultUtteranceIdle   = 750 * time.Millisecond
	DefaultRecognitionMax  = 2
)

// FromEnv builds a Config from environment variables, applying defaults for
// anything unset. It returns an error only for settings the process cannot
// run without.
func FromEnv() (Config, error) {
	c := Config{
		DiscordToken:    strings.TrimSpace(os.Getenv("DISCORD_BOT_TOKEN")),
		GuildID:         strings.TrimSpace(os.Getenv("GUILD_ID")),
		VoiceChannelID:  strings.TrimSpace(os.Getenv("VOICE_CHANNEL_ID")),
		AutoJoin:        envBool("AUTO_JOIN", true),
		BackendURL:      strings.TrimRight(strings.TrimSpace(os.Getenv("SPEECH_BACKEND_URL")), "/"),
		BackendToken:    strings.TrimSpace(os.Getenv("SPEECH_BACKEND_TOKEN")),
		Language:        envString("VOICE_LANGUAGE", DefaultLanguage),
		WakeWord:        strings.ToLower(envString("WAKE_WORD", DefaultWakeWord)),
		MatchThreshold:  envFloat("MATCH_THRESHOLD", DefaultMatchThreshold),
		MinCommandChars: envInt("MIN_COMMAND_CHARS", DefaultMinCommandChars),
		MinAliasChars:   envInt("MIN_ALIAS_CHARS", DefaultMinAliasChars),
		UtteranceMin:    envMillis("UTTERANCE_MIN_MS", DefaultUtteranceMin),
		UtteranceMax:    envMillis("UTTERANCE_MAX_MS", DefaultUtteranceMax),
		UtteranceIdle:   envMillis("UTTERANCE_IDLE_MS", DefaultUtteranceIdle),
		RecognitionMax:  envInt("RECOGNITION_QUEUE_DEPTH", DefaultRecognitionMax),
		StorePath:       strings.TrimSpace(os.Getenv("STORE_PATH")),
	}
	if c.DiscordToken == "" {
		return c, fmt.Errorf("DISCORD_BOT_TOKEN required")
	}
	if c.BackendURL == "" {
		return c, fmt.Errorf("SPEECH_BACKEND_URL required")
	}
	if c.MatchThreshold <= 0 || c.MatchThreshold > 1 {
		return c, fmt.Errorf("MATCH_THRESHOLD must be in (0, 1], got %v", c.MatchThreshold)
	}
	return c, nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	return def
}

func envInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envMillis(key string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Millisecond
		}
	}
	return def
}
