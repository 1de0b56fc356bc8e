// Package source loads the document agents are asked to read: a local file
// or a URL, with HTML reduced to its visible text.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ppiankov/concord/internal/logging"
	"github.com/ppiankov/concord/internal/model"
	"github.com/ppiankov/concord/internal/worker"
)

// Kind says where a source came from
type Kind string

const (
	KindFile Kind = "file"
	KindURL  Kind = "url"
	KindText Kind = "text"
)

var (
	// ErrEmpty is returned when a source has no readable text
	ErrEmpty = errors.New("source has no text")

	// ErrDisallowed is returned when robots.txt forbids the fetch
	ErrDisallowed = errors.New("disallowed by robots.txt")

	// ErrTooLarge is returned for local files over the size limit
	ErrTooLarge = errors.New("source exceeds size limit")

	// ErrNotUTF8 is returned for binary files
	ErrNotUTF8 = errors.New("source is not valid UTF-8 text")
)

// Source is a loaded document, ready for prompting
type Source struct {
	Ref         string    `json:"ref"`
	Kind        Kind      `json:"kind"`
	Title       string    `json:"title,omitempty"`
	Text        string    `json:"-"`
	ContentType string    `json:"content_type,omitempty"`
	Adapter     string    `json:"adapter,omitempty"`
	Truncated   bool      `json:"truncated,omitempty"`
	LoadedAt    time.Time `json:"loaded_at"`
}

// Loader resolves a reference to a Source
type Loader struct {
	fetcher       *Fetcher
	robots        *RobotsChecker
	registry      *Registry
	limiter       *worker.Limiter
	respectRobots bool
	maxBytes      int64
	logger        *zap.Logger
}

// NewLoader creates a loader from HTTP settings
func NewLoader(cfg model.HTTPConfig, logger *zap.Logger) *Loader {
	maxBytes := cfg.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = 2_000_000
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	fetcher := NewFetcher(timeout, cfg.UserAgent, maxBytes, cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy)

	return &Loader{
		fetcher:       fetcher,
		robots:        NewRobotsChecker(cfg.UserAgent, fetcher.httpClient),
		registry:      NewRegistry(),
		limiter:       worker.NewLimiter(0, 1),
		respectRobots: cfg.RespectRobots,
		maxBytes:      maxBytes,
		logger:        logging.OrNop(logger),
	}
}

// IsURL reports whether ref names an http(s) resource
func IsURL(ref string) bool {
	lower := strings.ToLower(ref)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// Load reads a file path or fetches a URL
func (l *Loader) Load(ctx context.Context, ref string) (*Source, error) {
	if IsURL(ref) {
		return l.loadURL(ctx, ref)
	}
	return l.loadFile(ref)
}

// FromText wraps text supplied directly by the caller
func (l *Loader) FromText(name, text string) (*Source, error) {
	return finish(&Source{Ref: name, Kind: KindText, ContentType: "text/plain", LoadedAt: time.Now()}, text)
}

// FromReader reads a whole stream as plain text, up to the size limit
func (l *Loader) FromReader(name string, r io.Reader) (*Source, error) {
	data, err := io.ReadAll(io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if int64(len(data)) > l.maxBytes {
		return nil, fmt.Errorf("%s: %w (%d bytes)", name, ErrTooLarge, l.maxBytes)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotUTF8)
	}
	return l.FromText(name, string(data))
}

func (l *Loader) loadFile(path string) (*Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat source: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("source %s is a directory", path)
	}
	if info.Size() > l.maxBytes {
		return nil, fmt.Errorf("%s: %w (%d > %d bytes)", path, ErrTooLarge, info.Size(), l.maxBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotUTF8)
	}

	src := &Source{Ref: path, Kind: KindFile, ContentType: "text/plain", LoadedAt: time.Now()}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".html" || ext == ".htm" {
		src.ContentType = "text/html"
		return l.fromHTML(src, string(data))
	}

	src.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return finish(src, string(data))
}

func (l *Loader) loadURL(ctx context.Context, rawURL string) (*Source, error) {
	if l.respectRobots {
		allowed, delay, err := l.robots.CanFetch(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, fmt.Errorf("%s: %w", rawURL, ErrDisallowed)
		}
		if delay > 0 {
			if host, err := hostKey(rawURL); err == nil {
				l.limiter.SetRate(host, 1/delay.Seconds(), 1)
			}
		}
	}

	if err := l.limiter.WaitURL(ctx, rawURL); err != nil {
		return nil, err
	}

	result, err := l.fetcher.FetchWithRetry(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if result.Truncated {
		l.logger.Warn("source truncated at size limit",
			zap.String("url", rawURL),
			zap.Int64("max_bytes", l.maxBytes))
	}

	src := &Source{
		Ref:         result.FinalURL,
		Kind:        KindURL,
		ContentType: result.ContentType,
		Truncated:   result.Truncated,
		LoadedAt:    time.Now(),
	}

	if LooksLikeHTML(result.ContentType, result.Body) {
		return l.fromHTML(src, result.Body)
	}

	src.Title = result.Subject
	return finish(src, result.Body)
}

func (l *Loader) fromHTML(src *Source, body string) (*Source, error) {
	doc, err := ParseHTML(body)
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	adapter := l.registry.FindAdapter(src.Ref, src.ContentType)
	extracted, err := adapter.Extract(doc, src.Ref)
	if err != nil {
		return nil, fmt.Errorf("%s adapter: %w", adapter.Name(), err)
	}

	src.Adapter = adapter.Name()
	src.Title = extracted.Title
	if src.Title == "" {
		src.Title = extractSubject(src.Ref)
	}

	l.logger.Debug("extracted HTML source",
		zap.String("ref", src.Ref),
		zap.String("adapter", adapter.Name()),
		zap.Int("chars", utf8.RuneCountInString(extracted.Text)))

	return finish(src, extracted.Text)
}

// finish normalizes line endings and rejects empty text. Offsets in
// citations are counted against exactly this text.
func finish(src *Source, text string) (*Source, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimPrefix(text, "\ufeff")
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%s: %w", src.Ref, ErrEmpty)
	}
	src.Text = text
	return src, nil
}

func hostKey(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return parsed.Host, nil
}
