// Package archive downloads a B3 trading-session archive and unpacks the
// XML documents nested inside it.
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/alim08/fin_quotes/pkg/logger"
	"github.com/alim08/fin_quotes/pkg/metrics"
)

const (
	// MinArchiveSize is the smallest body accepted as an archive. Shorter
	// bodies are error pages.
	MinArchiveSize = 200
	maxMemberSize  = 1 << 30
	maxRetries     = 3
)

var zipMagic = []byte("PK")

var (
	ErrNotArchive = errors.New("response is not a zip archive")
	ErrNoDocument = errors.New("archive holds no xml document")
)

// StatusError is a non-200 answer from the archive server.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Code)
}

// Document is one XML member found in the archive.
type Document struct {
	Name string
	Data []byte
}

type Option func(*Fetcher)

// WithBackOff replaces the exponential retry policy.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(f *Fetcher) { f.newBackOff = fn }
}

func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(f *Fetcher) { f.log = logger.Or(l) }
}

// Fetcher downloads session archives.
type Fetcher struct {
	client     *http.Client
	newBackOff func() backoff.BackOff
	log        *zap.Logger
}

func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        2,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		newBackOff: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries)
		},
		log: logger.Or(nil),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Download fetches url and returns the archive bytes. Server errors and
// transport failures are retried; a 4xx answer or a body that is not a zip
// archive is final.
func (f *Fetcher) Download(ctx context.Context, url string) ([]byte, error) {
	start := time.Now()
	defer func() {
		metrics.FetchLatency.Observe(time.Since(start).Seconds())
	}()

	var body []byte
	attempt := 0
	op := func() error {
		attempt++
		b, err := f.get(ctx, url)
		if err != nil {
			f.log.Warn("archive download failed",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return err
		}
		body = b
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(f.newBackOff(), ctx)); err != nil {
		metrics.FetchErrors.Inc()
		return nil, err
	}

	metrics.FetchCounter.Inc()
	metrics.FetchBytes.Add(float64(len(body)))
	f.log.Info("archive downloaded", zap.String("url", url), zap.Int("bytes", len(body)))
	return body, nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		serr := &StatusError{URL: url, Code: resp.StatusCode}
		if resp.StatusCode < http.StatusInternalServerError {
			return nil, backoff.Permanent(serr)
		}
		return nil, serr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(body) <= MinArchiveSize || !bytes.HasPrefix(body, zipMagic) {
		return nil, backoff.Permanent(fmt.Errorf("%w: %d bytes from %s", ErrNotArchive, len(body), url))
	}
	return body, nil
}

// Unpack returns the XML documents of a session archive sorted by name.
// The session archive wraps one or more inner zips; XML members at either
// level are collected.
func Unpack(data []byte) ([]Document, error) {
	outer, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotArchive, err)
	}

	var docs []Document
	for _, f := range outer.File {
		switch strings.ToLower(path.Ext(f.Name)) {
		case ".xml":
			doc, err := readMember(f)
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
		case ".zip":
			raw, err := readMember(f)
			if err != nil {
				return nil, err
			}
			inner, err := zip.NewReader(bytes.NewReader(raw.Data), int64(len(raw.Data)))
			if err != nil {
				return nil, fmt.Errorf("inner archive %s: %w", f.Name, err)
			}
			for _, g := range inner.File {
				if strings.EqualFold(path.Ext(g.Name), ".xml") {
					doc, err := readMember(g)
					if err != nil {
						return nil, err
					}
					docs = append(docs, doc)
				}
			}
		}
	}

	if len(docs) == 0 {
		return nil, ErrNoDocument
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return docs, nil
}

func readMember(f *zip.File) (Document, error) {
	if f.UncompressedSize64 > maxMemberSize {
		return Document{}, fmt.Errorf("member %s too large: %d bytes", f.Name, f.UncompressedSize64)
	}
	rc, err := f.Open()
	if err != nil {
		return Document{}, fmt.Errorf("open member %s: %w", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxMemberSize))
	if err != nil {
		return Document{}, fmt.Errorf("read member %s: %w", f.Name, err)
	}
	return Document{Name: path.Base(f.Name), Data: data}, nil
}

// Select picks the document to stage: the first whose name starts with
// prefix, or the largest one when none does.
func Select(docs []Document, prefix string) (Document, error) {
	if len(docs) == 0 {
		return Document{}, ErrNoDocument
	}
	for _, d := range docs {
		if prefix != "" && strings.HasPrefix(strings.ToUpper(d.Name), strings.ToUpper(prefix)) {
			return d, nil
		}
	}
	best := docs[0]
	for _, d := range docs[1:] {
		if len(d.Data) > len(best.Data) {
			best = d
		}
	}
	return best, nil
}
