// Package remote talks to the enrichment service that hosts transcription,
// extraction, summarization and semantic ranking. kith treats the models
// behind it as opaque: this package only knows the HTTP contract.
//
// Every call waits on a shared rate limiter, honors the caller's context and
// reports transport failures and non-2xx answers as *NetworkError, which
// matches ErrNetwork under errors.Is.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/HendryAvila/kith/internal/config"
	"github.com/HendryAvila/kith/internal/logging"
	"github.com/HendryAvila/kith/internal/store"
)

// maxErrorBody bounds how much of a failed response is kept for the error.
const maxErrorBody = 512

// ErrNetwork matches every *NetworkError.
var ErrNetwork = errors.New("remote: network error")

// NetworkError describes a failed call to the enrichment service.
type NetworkError struct {
	Op     string
	Status int // 0 when the request never got an answer
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("remote: %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("remote: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Is reports ErrNetwork as a match.
func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// ─── Wire types ──────────────────────────────────────────────────────────────

// ContactContext is what the extractor knows about the contact a note is
// being recorded for.
type ContactContext struct {
	ContactID   string       `json:"contact_id,omitempty"`
	DisplayName string       `json:"display_name,omitempty"`
	KnownFacts  []store.Fact `json:"known_facts,omitempty"`
}

// Extraction is the structured result of mining a transcript.
type Extraction struct {
	Summary   string                `json:"summary,omitempty"`
	Facts     []store.FactDraft     `json:"facts"`
	HotTopics []store.HotTopicDraft `json:"hot_topics"`
}

// EvidenceItem is one piece of local evidence sent for ranking.
type EvidenceItem struct {
	SourceID  string `json:"source_id"`
	ContactID string `json:"contact_id,omitempty"`
	Text      string `json:"text"`
}

// RankRequest is the payload of a semantic ranking call.
type RankRequest struct {
	Query    string         `json:"query"`
	Facts    []EvidenceItem `json:"facts"`
	Memories []EvidenceItem `json:"memories"`
	Notes    []EvidenceItem `json:"notes"`
}

// Result is one ranked answer.
type Result struct {
	SourceID   string  `json:"source_id"`
	SourceType string  `json:"source_type"`
	Snippet    string  `json:"snippet"`
	Score      float64 `json:"score"`
}

// ─── Client ──────────────────────────────────────────────────────────────────

// Client is the HTTP adapter for the enrichment service.
type Client struct {
	baseURL    string
	apiKey     string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logrus.Entry
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithLogger sets the entry used for request logging.
func WithLogger(log *logrus.Entry) Option {
	return func(cl *Client) { cl.log = log }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(cl *Client) { cl.userAgent = ua }
}

// New creates a client from the remote section of the config.
func New(cfg config.RemoteConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 2
	}
	burst := int(rps * 2)
	if burst < 1 {
		burst = 1
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		userAgent:  "kith",
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		log:        logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transcribe uploads the audio behind audioURI and returns its transcript.
func (c *Client) Transcribe(ctx context.Context, audioURI string) (string, error) {
	const op = "transcribe"

	path, err := localPath(audioURI)
	if err != nil {
		return "", &NetworkError{Op: op, Err: err}
	}
	f, err := os.Open(path)
	if err != nil {
		return "", &NetworkError{Op: op, Err: fmt.Errorf("open audio: %w", err)}
	}
	defer func() { _ = f.Close() }()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", &NetworkError{Op: op, Err: err}
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", &NetworkError{Op: op, Err: fmt.Errorf("read audio: %w", err)}
	}
	if err := writer.Close(); err != nil {
		return "", &NetworkError{Op: op, Err: err}
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := c.do(ctx, op, http.MethodPost, "/transcribe", writer.FormDataContentType(), body, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Text), nil
}

// Extract mines a transcript for facts and hot topics.
func (c *Client) Extract(ctx context.Context, text string, cc ContactContext) (*Extraction, error) {
	payload := struct {
		Text    string         `json:"text"`
		Contact ContactContext `json:"contact"`
	}{Text: text, Contact: cc}

	var out Extraction
	if err := c.doJSON(ctx, "extract", http.MethodPost, "/extract", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Summary returns the AI summary the service holds for a contact, or ""
// when the summarization job has not landed yet.
func (c *Client) Summary(ctx context.Context, contactID string) (string, error) {
	var out struct {
		Summary *string `json:"summary"`
	}
	err := c.doJSON(ctx, "summary", http.MethodGet, "/contacts/"+url.PathEscape(contactID)+"/summary", nil, &out)
	var ne *NetworkError
	if errors.As(err, &ne) && ne.Status == http.StatusNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if out.Summary == nil {
		return "", nil
	}
	return strings.TrimSpace(*out.Summary), nil
}

// Rank asks the service to rank evidence against a query.
func (c *Client) Rank(ctx context.Context, req RankRequest) ([]Result, error) {
	var out struct {
		Results []Result `json:"results"`
	}
	if err := c.doJSON(ctx, "rank", http.MethodPost, "/rank", req, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// ─── Plumbing ────────────────────────────────────────────────────────────────

func (c *Client) doJSON(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return &NetworkError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}
	return c.do(ctx, op, method, path, contentType, body, out)
}

func (c *Client) do(ctx context.Context, op, method, path, contentType string, body io.Reader, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &NetworkError{Op: op, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &NetworkError{Op: op, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WithError(err).WithField("op", op).Warn("remote call failed")
		return &NetworkError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	c.log.WithFields(logrus.Fields{
		"op":       op,
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}).Debug("remote call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &NetworkError{
			Op:     op,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%s", strings.TrimSpace(string(snippet))),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &NetworkError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// localPath turns a file:// URI (or a bare path) into a filesystem path.
func localPath(audioURI string) (string, error) {
	if audioURI == "" {
		return "", errors.New("empty audio uri")
	}
	u, err := url.Parse(audioURI)
	if err != nil || u.Scheme == "" {
		return audioURI, nil
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("unsupported audio uri scheme %q", u.Scheme)
	}
	return u.Path, nil
}
