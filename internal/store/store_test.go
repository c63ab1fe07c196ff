package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPhoneticRoundtrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, ok, err := s.GetPhonetic(ctx, "en", "hello")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.PutPhonetic(ctx, "en", "hello", "HELO"))
	v, ok, err := s.GetPhonetic(ctx, "en", "hello")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "HELO", v)

	// Same text under another language is a distinct key.
	_, ok, err = s.GetPhonetic(ctx, "fi", "hello")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSpeechRoundtrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutSpeech(ctx, "en", "pong", []byte{1, 2, 3}))
	audio, ok, err := s.GetSpeech(ctx, "en", "pong")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, audio)
}

func TestPutDoesNotOverwrite(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutPhonetic(ctx, "en", "hello", "HELO"))
	require.NoError(t, s.PutPhonetic(ctx, "en", "hello", "DIFFERENT"))
	v, ok, err := s.GetPhonetic(ctx, "en", "hello")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "HELO", v)

	require.NoError(t, s.PutSpeech(ctx, "en", "pong", []byte{1}))
	require.NoError(t, s.PutSpeech(ctx, "en", "pong", []byte{2}))
	audio, _, err := s.GetSpeech(ctx, "en", "pong")
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, audio)
}

func TestReopenPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.PutPhonetic(ctx, "en", "wake", "VAKE"))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	v, ok, err := s.GetPhonetic(ctx, "en", "wake")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "VAKE", v)
}
