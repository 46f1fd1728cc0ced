// Package inference is the HTTP client for the remote conversation service: an
// initialize handshake and the per-turn audio exchange.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/rbright/fala/internal/emotion"
	"github.com/rbright/fala/internal/version"
)

const (
	maxReplyBytes  = 32 << 20
	maxDetailBytes = 512
)

// Config addresses the service. Zero durations fall back to the defaults below.
type Config struct {
	BaseURL        string
	APIKey         string
	InitializePath string
	InteractPath   string
	EmotionHeader  string
	UploadField    string
	UploadFilename string
	InitTimeout    time.Duration
	TurnTimeout    time.Duration
	HTTPClient     *http.Client
}

// Defaults used when Config leaves a field empty.
const (
	DefaultInitializePath = "/initialize"
	DefaultInteractPath   = "/interact"
	DefaultEmotionHeader  = "X-Musicalia-Emotion-Codes"
	DefaultUploadField    = "file"
	DefaultUploadFilename = "audio.wav"
	DefaultInitTimeout    = 60 * time.Second
	DefaultTurnTimeout    = 120 * time.Second
)

// Reply is a successful /interact answer.
type Reply struct {
	Audio       []byte
	ContentType string
	// Codes holds the emotion codes in received order.
	Codes []int
	// CodesErr names header entries that were not integers; Codes keeps the rest.
	CodesErr   error
	StatusCode int
	Latency    time.Duration
}

// Client talks to one inference service.
type Client struct {
	cfg     Config
	base    *url.URL
	http    *http.Client
	nowFunc func() time.Time
}

// New validates cfg and fills defaults.
func New(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("inference base url is empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse inference base url %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("inference base url %q must be http or https", cfg.BaseURL)
	}

	cfg.InitializePath = orDefault(cfg.InitializePath, DefaultInitializePath)
	cfg.InteractPath = orDefault(cfg.InteractPath, DefaultInteractPath)
	cfg.EmotionHeader = orDefault(cfg.EmotionHeader, DefaultEmotionHeader)
	cfg.UploadField = orDefault(cfg.UploadField, DefaultUploadField)
	cfg.UploadFilename = orDefault(cfg.UploadFilename, DefaultUploadFilename)
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = DefaultInitTimeout
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = DefaultTurnTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{cfg: cfg, base: base, http: httpClient, nowFunc: time.Now}, nil
}

// BaseURL returns the normalized service root.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Initialize runs the handshake. Any 2xx, including "already initialized", is
// success.
func (c *Client) Initialize(ctx context.Context) error {
	const op = "initialize"

	ctx, cancel := context.WithTimeout(ctx, c.cfg.InitTimeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{"api_key": c.cfg.APIKey})
	if err != nil {
		return fmt.Errorf("encode initialize body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(c.cfg.InitializePath), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build initialize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransport(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyStatus(op, resp.StatusCode, readDetail(resp.Body))
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDetailBytes))
	return nil
}

// Interact uploads one WAV utterance and returns the service's spoken reply.
// requestID is sent as X-Request-ID when non-empty.
func (c *Client) Interact(ctx context.Context, requestID string, wav []byte) (Reply, error) {
	const op = "interact"

	ctx, cancel := context.WithTimeout(ctx, c.cfg.TurnTimeout)
	defer cancel()

	body, contentType, err := c.multipartBody(wav)
	if err != nil {
		return Reply{}, fmt.Errorf("encode interact body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(c.cfg.InteractPath), body)
	if err != nil {
		return Reply{}, fmt.Errorf("build interact request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", version.UserAgent())
	if requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}

	started := c.nowFunc()
	resp, err := c.http.Do(req)
	if err != nil {
		return Reply{}, classifyTransport(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Reply{}, classifyStatus(op, resp.StatusCode, readDetail(resp.Body))
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes+1))
	if err != nil {
		return Reply{}, classifyTransport(op, err)
	}
	if len(audio) > maxReplyBytes {
		return Reply{}, fmt.Errorf("%w: reply exceeds %d bytes", ErrResponseDecode, maxReplyBytes)
	}

	reply := Reply{
		Audio:       audio,
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
		Latency:     c.nowFunc().Sub(started),
	}
	reply.Codes, reply.CodesErr = emotion.ParseCodes(resp.Header.Get(c.cfg.EmotionHeader))
	return reply, nil
}

func (c *Client) multipartBody(wav []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, c.cfg.UploadField, c.cfg.UploadFilename))
	header.Set("Content-Type", "audio/wav")
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(wav); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.base.String(), "/") + "/" + strings.TrimLeft(path, "/")
}

// readDetail pulls a short error message out of a failure body. JSON bodies with
// an "error" or "message" field are unwrapped.
func readDetail(body io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(body, maxDetailBytes))
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return ""
	}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &payload) == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return text
}

func orDefault(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
