package session

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mpapenbr/sentinel-replay/log"
	"github.com/mpapenbr/sentinel-replay/pkg/model"
)

type (
	HTTPLoader struct {
		base   string
		client *http.Client
		l      *log.Logger
	}
	HTTPOption func(*HTTPLoader)
)

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPLoader) {
		h.client = c
	}
}

func WithLogger(l *log.Logger) HTTPOption {
	return func(h *HTTPLoader) {
		h.l = l
	}
}

// NewHTTPLoader creates a loader for the session service at base.
func NewHTTPLoader(base string, opts ...HTTPOption) *HTTPLoader {
	h := &HTTPLoader{
		base:   base,
		client: &http.Client{Timeout: 60 * time.Second},
		l:      log.Default().Named("client.session"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Load fetches GET {base}/session?year=&location=&session=&driver=.
func (h *HTTPLoader) Load(ctx context.Context, key model.SessionKey) (*model.SessionData, error) {
	q := url.Values{}
	q.Set("year", strconv.Itoa(key.Year))
	q.Set("location", key.Location)
	q.Set("session", key.SessionType)
	q.Set("driver", key.Driver)
	target := fmt.Sprintf("%s/session?%s", h.base, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	req.Header.Set("Accept", "application/json")
	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %s", ErrLoadFailed, target, resp.Status)
	}
	data, err := Decode(resp.Body, FormatJSON)
	if err != nil {
		h.l.Warn("invalid session payload",
			log.String("session", key.String()), log.ErrorField(err))
		return nil, err
	}
	if data.Key == (model.SessionKey{}) {
		data.Key = key
	}
	h.l.Debug("session fetched",
		log.String("session", key.String()),
		log.Int("samples", len(data.Samples)),
		log.Duration("duration", time.Since(start)))
	return data, nil
}
