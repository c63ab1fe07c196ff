package voice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lasa01/extcord-voice/internal/backend"
)

// speechBackend fakes all three backend routes. ASR serves transcript, or
// accurateTranscript when the accurate variant is requested; phonetics
// uppercase known words; TTS returns "clip:" + the requested text.
type speechBackend struct {
	phonetics          map[string]string
	transcript         backend.Transcription
	accurateTranscript backend.Transcription
}

func (s *speechBackend) server(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/phonetics/"):
			text := strings.ToLower(r.URL.Query().Get("text"))
			if p, ok := s.phonetics[text]; ok {
				_, _ = w.Write([]byte(p))
				return
			}
			_, _ = w.Write([]byte(strings.ToUpper(text)))
		case strings.HasPrefix(r.URL.Path, "/tts/"):
			_, _ = w.Write([]byte("clip:" + r.URL.Query().Get("text")))
		case strings.HasPrefix(r.URL.Path, "/asr/"):
			tr := s.transcript
			if r.URL.Query().Get("accurate") == "1" {
				tr = s.accurateTranscript
			}
			_ = json.NewEncoder(w).Encode(map[string]string{
				"text":          tr.Text,
				"text_phonetic": tr.Phonetic,
			})
		default:
			http.NotFound(w, r)
		}
	}))
}

type orchFixture struct {
	orch *Orchestrator
	sink *fakeSink
	play *fakeCommand
}

func newOrchFixture(t *testing.T, be *speechBackend) *orchFixture {
	t.Helper()
	srv := be.server(t)
	t.Cleanup(srv.Close)

	client := backend.NewClient(srv.URL, "")
	phonetics := backend.NewPhoneticCache(client, nil)
	speech := backend.NewSpeechCache(client, nil)
	play := &fakeCommand{name: "play", voice: true}
	index := NewIndex(fakeRegistry{play}, phonetics, 2)

	sink := &fakeSink{}
	players := NewPlayerRegistry(func(room string) OutputSink { return sink })
	t.Cleanup(players.Close)

	orch := NewOrchestrator(OrchestratorConfig{
		WakeWord:        "bot",
		MatchThreshold:  0.8,
		MinCommandChars: 3,
		Default:         "en",
	}, client, phonetics, speech, index, players)
	return &orchFixture{orch: orch, sink: sink, play: play}
}

func testUtterance() *Utterance {
	return &Utterance{
		Room:          "room-1",
		Speaker:       "alice",
		CorrelationID: "cid-1",
		Encoded:       []byte{1, 0, 2, 0, 9, 9},
	}
}

func TestOrchestratorExecutesResolvedCommand(t *testing.T) {
	f := newOrchFixture(t, &speechBackend{
		phonetics: map[string]string{"bot": "BOT", "play": "PLE"},
		transcript: backend.Transcription{
			Text:     "bot play jazz music",
			Phonetic: "BOT PLE JAZ MUZIK",
		},
	})

	f.orch.HandleUtterance(context.Background(), testUtterance())

	require.EqualValues(t, 1, f.play.executions.Load())
	assert.Equal(t, "jazz music", f.play.lastExec.Arguments)
	assert.Equal(t, "alice", f.play.lastExec.Speaker)
	assert.False(t, f.play.lastExec.Accurate)
	assert.Empty(t, f.sink.playedClips())
}

func TestOrchestratorIgnoresUtteranceWithoutWakeWord(t *testing.T) {
	f := newOrchFixture(t, &speechBackend{
		phonetics: map[string]string{"bot": "BOT", "play": "PLE"},
		transcript: backend.Transcription{
			Text:     "nice weather today",
			Phonetic: "NAJS VEDER TUDEJ",
		},
	})

	f.orch.HandleUtterance(context.Background(), testUtterance())

	assert.Zero(t, f.play.executions.Load())
	assert.Empty(t, f.sink.playedClips())
}

func TestOrchestratorDiscardsTooShortCommand(t *testing.T) {
	f := newOrchFixture(t, &speechBackend{
		phonetics: map[string]string{"bot": "BOT"},
		transcript: backend.Transcription{
			Text:     "bot hi",
			Phonetic: "BOT HI",
		},
	})

	f.orch.HandleUtterance(context.Background(), testUtterance())

	assert.Zero(t, f.play.executions.Load())
	assert.Empty(t, f.sink.playedClips())
}

func TestOrchestratorMinCommandLengthCountsRunes(t *testing.T) {
	f := newOrchFixture(t, &speechBackend{
		phonetics: map[string]string{"bot": "BOT"},
		transcript: backend.Transcription{
			// Two runes but four UTF-8 bytes; still below the minimum of 3.
			Text:     "bot éé",
			Phonetic: "BOT EE",
		},
	})

	f.orch.HandleUtterance(context.Background(), testUtterance())

	assert.Zero(t, f.play.executions.Load())
	assert.Empty(t, f.sink.playedClips())
}

func TestOrchestratorSpeaksInvalidCommandResponse(t *testing.T) {
	f := newOrchFixture(t, &speechBackend{
		phonetics: map[string]string{"bot": "BOT", "play": "PLE"},
		transcript: backend.Transcription{
			Text:     "bot dance for me",
			Phonetic: "BOT DENS FOR MI",
		},
	})

	f.orch.HandleUtterance(context.Background(), testUtterance())

	assert.Zero(t, f.play.executions.Load())
	clips := f.sink.playedClips()
	require.Len(t, clips, 2)
	assert.Equal(t, "clip:Invalid command", string(clips[0]))
	assert.Equal(t, "clip:dance for me", string(clips[1]))
}

func TestOrchestratorRespondPlaysThroughPlayer(t *testing.T) {
	f := newOrchFixture(t, &speechBackend{
		phonetics: map[string]string{"bot": "BOT", "play": "PLE"},
		transcript: backend.Transcription{
			Text:     "bot play jazz",
			Phonetic: "BOT PLE JAZ",
		},
	})
	f.play.respondWith = []Part{Static("Now playing "), Dynamic("jazz")}

	f.orch.HandleUtterance(context.Background(), testUtterance())

	clips := f.sink.playedClips()
	require.Len(t, clips, 2)
	assert.Equal(t, "clip:Now playing", string(clips[0]))
	assert.Equal(t, "clip:jazz", string(clips[1]))
}

func TestOrchestratorRespondTruncatesAtLineBreak(t *testing.T) {
	f := newOrchFixture(t, &speechBackend{
		phonetics: map[string]string{"bot": "BOT", "play": "PLE"},
		transcript: backend.Transcription{
			Text:     "bot play jazz",
			Phonetic: "BOT PLE JAZ",
		},
	})
	// Everything past the first line break is dropped: the rest of the
	// multi-line part and every part after it.
	f.play.respondWith = []Part{
		Static("Now playing\nrequested by alice"),
		Dynamic("ignored"),
	}

	f.orch.HandleUtterance(context.Background(), testUtterance())

	clips := f.sink.playedClips()
	require.Len(t, clips, 1)
	assert.Equal(t, "clip:Now playing", string(clips[0]))
}

func TestOrchestratorAccurateRecheck(t *testing.T) {
	f := newOrchFixture(t, &speechBackend{
		phonetics: map[string]string{"bot": "BOT", "play": "PLE"},
		transcript: backend.Transcription{
			Text:     "bot play jaz musik",
			Phonetic: "BOT PLE JAZ MUZIK",
		},
		accurateTranscript: backend.Transcription{
			Text:     "bot play smooth jazz",
			Phonetic: "BOT PLE SMUD JAZ",
		},
	})
	f.play.requestAccurate = true

	f.orch.HandleUtterance(context.Background(), testUtterance())

	require.EqualValues(t, 2, f.play.executions.Load())
	assert.True(t, f.play.lastExec.Accurate)
	assert.Equal(t, "smooth jazz", f.play.lastExec.Arguments)
}
