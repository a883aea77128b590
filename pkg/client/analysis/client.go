// Package analysis talks to the anomaly analysis service.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/mod/semver"

	"github.com/mpapenbr/sentinel-replay/log"
	"github.com/mpapenbr/sentinel-replay/pkg/model"
)

const (
	requestIDHeader = "X-Request-ID"
	traceIDHeader   = "X-Trace-ID"
)

var ErrIncompatibleService = errors.New("incompatible analysis service")

type (
	Client struct {
		base       string
		http       *http.Client
		minVersion string
		tracer     trace.Tracer
		l          *log.Logger
	}
	Option func(*Client)

	// Health is the answer of the service root endpoint.
	Health struct {
		Status  string `json:"status"`
		Version string `json:"version,omitempty"`
	}
	// errorResponse is returned by the service with status 200 for rejected input.
	errorResponse struct {
		Error string `json:"error"`
	}
)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithMinVersion requires the service to report at least version v in its
// health response.
func WithMinVersion(v string) Option {
	return func(cl *Client) {
		cl.minVersion = v
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(cl *Client) {
		cl.tracer = t
	}
}

func WithLogger(l *log.Logger) Option {
	return func(cl *Client) {
		cl.l = l
	}
}

func New(base string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimSuffix(base, "/"),
		http: &http.Client{Timeout: 2 * time.Minute},
		l:    log.Default().Named("client.analysis"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer("sentinel")
	}
	return c
}

// Analyze submits req to {base}/predict. Every failure is reported as
// model.ErrAnalysisRequestFailed.
//
//nolint:funlen // readability
func (c *Client) Analyze(ctx context.Context, req *model.AnalysisRequest) (
	*model.AnalysisResult, error,
) {
	ctx, span := c.tracer.Start(ctx, "analysis.predict",
		trace.WithAttributes(
			attribute.String("session", req.Metadata.SessionID),
			attribute.Int("samples", len(req.Speed)),
		))
	defer span.End()

	fail := func(err error) (*model.AnalysisResult, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.l.Warn("analysis request failed", log.ErrorField(err))
		return nil, fmt.Errorf("%w: %w", model.ErrAnalysisRequestFailed, err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fail(err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.base+"/predict", bytes.NewReader(body))
	if err != nil {
		return fail(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	requestID := uuid.Must(uuid.NewV4()).String()
	httpReq.Header.Set(requestIDHeader, requestID)
	if sc := span.SpanContext(); sc.IsValid() {
		httpReq.Header.Set(traceIDHeader, sc.TraceID().String())
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(err)
	}
	if resp.StatusCode != http.StatusOK {
		return fail(fmt.Errorf("status %s: %s", resp.Status, firstLine(data)))
	}
	var rejected errorResponse
	if json.Unmarshal(data, &rejected) == nil && rejected.Error != "" {
		return fail(fmt.Errorf("rejected: %s", rejected.Error))
	}
	var res model.AnalysisResult
	if err := json.Unmarshal(data, &res); err != nil {
		return fail(fmt.Errorf("decode response: %w", err))
	}
	if err := validate(&res); err != nil {
		return fail(err)
	}
	span.SetAttributes(attribute.Int("anomalies", res.NumAnomalies()))
	c.l.Info("analysis done",
		log.String("requestId", requestID),
		log.Int("windows", len(res.IsAnomaly)),
		log.Int("anomalies", res.NumAnomalies()),
		log.Duration("duration", time.Since(start)))
	return &res, nil
}

// Health queries the service root and checks the reported version.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/", http.NoBody)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrAnalysisRequestFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %s", model.ErrAnalysisRequestFailed, resp.Status)
	}
	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrAnalysisRequestFailed, err)
	}
	if c.minVersion != "" && !CheckVersion(h.Version, c.minVersion) {
		return &h, fmt.Errorf("%w: version %q, need %s",
			ErrIncompatibleService, h.Version, c.minVersion)
	}
	return &h, nil
}

// CheckVersion reports whether version is at least minVersion. The "v" prefix
// is optional on both.
func CheckVersion(version, minVersion string) bool {
	canon := func(s string) string {
		if !strings.HasPrefix(s, "v") {
			return "v" + s
		}
		return s
	}
	v := canon(version)
	if !semver.IsValid(v) {
		return false
	}
	return semver.Compare(v, canon(minVersion)) >= 0
}

func validate(res *model.AnalysisResult) error {
	n := len(res.IsAnomaly)
	if len(res.ReconstructionError) != 0 && len(res.ReconstructionError) != n {
		return fmt.Errorf("reconstruction_error has %d entries, is_anomaly %d",
			len(res.ReconstructionError), n)
	}
	return nil
}

func firstLine(b []byte) string {
	s, _, _ := strings.Cut(string(b), "\n")
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
