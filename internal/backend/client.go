// Package backend is the network boundary to the external speech services:
// speech recognition, text-to-phonetic transcription, and text-to-speech.
// It also hosts the caches that memoize those calls.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lasa01/extcord-voice/internal/logging"
)

// Transcription is the ASR result. Word i of Text corresponds to word i of
// Phonetic; the matcher depends on that alignment.
type Transcription struct {
	Text     string `json:"text"`
	Phonetic string `json:"text_phonetic"`
}

// Client talks to the speech backend. It is stateless besides the shared
// keep-alive HTTP client and is safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient returns a Client for the given base URL. token is sent as a
// bearer authorization header on every request when non-empty.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Phonetic returns the phonetic transcription of text in the given language.
func (c *Client) Phonetic(ctx context.Context, language, text string) (string, error) {
	u := fmt.Sprintf("%s/phonetics/%s?text=%s", c.baseURL, url.PathEscape(language), url.QueryEscape(text))
	body, err := c.get(ctx, u)
	if err != nil {
		return "", fmt.Errorf("phonetics request: %w", err)
	}
	return string(body), nil
}

// Speech synthesizes text in the given language and returns the raw encoded
// audio bytes.
func (c *Client) Speech(ctx context.Context, language, text string) ([]byte, error) {
	u := fmt.Sprintf("%s/tts/%s?text=%s", c.baseURL, url.PathEscape(language), url.QueryEscape(text))
	body, err := c.get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("tts request: %w", err)
	}
	return body, nil
}

// Recognize sends an encoded utterance (see EncodeUtterance) for speech
// recognition. accurate selects the slower, higher-accuracy model variant.
func (c *Client) Recognize(ctx context.Context, language string, utterance []byte, accurate bool) (Transcription, error) {
	u := fmt.Sprintf("%s/asr/%s", c.baseURL, url.PathEscape(language))
	if accurate {
		u += "?accurate=1"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(utterance))
	if err != nil {
		return Transcription{}, fmt.Errorf("asr request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	c.authorize(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return Transcription{}, fmt.Errorf("asr request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Transcription{}, fmt.Errorf("asr returned status %d", resp.StatusCode)
	}
	var tr Transcription
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return Transcription{}, fmt.Errorf("asr response decode: %w", err)
	}
	logging.Debugw("asr response received", "language", language, "accurate", accurate, "text_len", len(tr.Text))
	return tr, nil
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
