// Package control exposes the replay engine over HTTP.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/mpapenbr/sentinel-replay/log"
	"github.com/mpapenbr/sentinel-replay/pkg/analysis/overlay"
	"github.com/mpapenbr/sentinel-replay/pkg/client/session"
	"github.com/mpapenbr/sentinel-replay/pkg/engine"
	"github.com/mpapenbr/sentinel-replay/pkg/engine/attack"
	"github.com/mpapenbr/sentinel-replay/pkg/engine/frame"
	"github.com/mpapenbr/sentinel-replay/pkg/model"
)

// maxSessionBody limits uploaded session payloads.
const maxSessionBody = 64 << 20

// Replay is the command surface of engine.Runner.
type Replay interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Reset(ctx context.Context) error
	Clear(ctx context.Context) error
	Load(ctx context.Context, data *model.SessionData) error
	LoadSession(ctx context.Context, key model.SessionKey) error
	ToggleAttack(ctx context.Context, v attack.Vector) (attack.Vector, error)
	SetAttack(ctx context.Context, v attack.Vector) error
	SetMapMode(ctx context.Context, m frame.MapMode) error
	SetSpeed(ctx context.Context, f float64) error
	Submit(ctx context.Context) (*overlay.Overlay, error)
	State(ctx context.Context) (engine.State, error)
	LastFrame(ctx context.Context) (*frame.Frame, error)
	Series(ctx context.Context, c model.Channel) ([]frame.Point, error)
	Snapshot(ctx context.Context) (*engine.Snapshot, error)
}

// FrameSource delivers frames to streaming clients.
type FrameSource interface {
	Subscribe() <-chan *frame.Frame
	CancelSubscription(ch <-chan *frame.Frame)
}

type (
	Server struct {
		replay      Replay
		frames      FrameSource
		router      *mux.Router
		assetsHost  string
		reqTimeout  time.Duration
		submitLimit time.Duration
		l           *log.Logger
	}
	Option func(*Server)
)

// WithFrameSource enables the frame stream endpoint.
func WithFrameSource(src FrameSource) Option {
	return func(s *Server) {
		s.frames = src
	}
}

func WithAssetsHost(host string) Option {
	return func(s *Server) {
		s.assetsHost = host
	}
}

// WithRequestTimeout bounds commands waiting for the engine loop.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.reqTimeout = d
	}
}

// WithSubmitTimeout bounds the analysis round trip.
func WithSubmitTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.submitLimit = d
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Server) {
		s.l = l
	}
}

func NewServer(replay Replay, opts ...Option) *Server {
	s := &Server{
		replay:      replay,
		router:      mux.NewRouter(),
		reqTimeout:  5 * time.Second,
		submitLimit: 2 * time.Minute,
		l:           log.Default().Named("control"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/playback/start", s.command(s.replay.Start)).Methods(http.MethodPost)
	api.HandleFunc("/playback/stop", s.command(s.replay.Stop)).Methods(http.MethodPost)
	api.HandleFunc("/playback/reset", s.command(s.replay.Reset)).Methods(http.MethodPost)
	api.HandleFunc("/playback/speed", s.handleSpeed).Methods(http.MethodPut)

	api.HandleFunc("/session", s.handleLoadSession).Methods(http.MethodPost)
	api.HandleFunc("/session", s.handleUploadSession).Methods(http.MethodPut)
	api.HandleFunc("/session", s.command(s.replay.Clear)).Methods(http.MethodDelete)

	api.HandleFunc("/attack", s.handleSetAttack).Methods(http.MethodPut)
	api.HandleFunc("/attack/{vector}/toggle", s.handleToggleAttack).Methods(http.MethodPost)
	api.HandleFunc("/mapmode", s.handleMapMode).Methods(http.MethodPut)

	api.HandleFunc("/analysis", s.handleSubmit).Methods(http.MethodPost)
	api.HandleFunc("/analysis/findings", s.handleFindings).Methods(http.MethodGet)

	api.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	api.HandleFunc("/frame", s.handleFrame).Methods(http.MethodGet)
	api.HandleFunc("/frames", s.handleFrameStream).Methods(http.MethodGet)
	api.HandleFunc("/series/{channel}", s.handleSeries).Methods(http.MethodGet)

	s.router.HandleFunc("/debug/charts", s.handleCharts).Methods(http.MethodGet)
	s.router.HandleFunc("/debug/track.png", s.handleTrack).Methods(http.MethodGet)

	s.router.Use(s.loggingMiddleware)
}

// Handler returns the router wrapped with a permissive CORS setup.
func (s *Server) Handler() http.Handler {
	return NewCORS().Handler(s.router)
}

func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.l.Debug("request",
			log.String("method", r.Method),
			log.String("path", r.URL.Path),
			log.Duration("duration", time.Since(start)))
	})
}

// command wraps a parameterless engine command. Repeating a command leaves the
// engine in the same state.
func (s *Server) command(fn func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.reqTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.respondError(w, err)
			return
		}
		s.respondState(ctx, w)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "online"})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Factor float64 `json:"factor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Factor <= 0 {
		respondMessage(w, http.StatusBadRequest, "factor must be a positive number")
		return
	}
	s.command(func(ctx context.Context) error {
		return s.replay.SetSpeed(ctx, req.Factor)
	})(w, r)
}

func (s *Server) handleLoadSession(w http.ResponseWriter, r *http.Request) {
	var key model.SessionKey
	if err := json.NewDecoder(r.Body).Decode(&key); err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid session key")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.submitLimit)
	defer cancel()
	if err := s.replay.LoadSession(ctx, key); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondState(ctx, w)
}

// handleUploadSession loads a session payload sent in the request body, YAML if
// the content type says so, JSON otherwise.
func (s *Server) handleUploadSession(w http.ResponseWriter, r *http.Request) {
	format := session.FormatJSON
	if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		format = session.FormatYAML
	}
	data, err := session.Decode(http.MaxBytesReader(w, r.Body, maxSessionBody), format)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.command(func(ctx context.Context) error {
		return s.replay.Load(ctx, data)
	})(w, r)
}

func (s *Server) handleSetAttack(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Vector string `json:"vector"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid attack request")
		return
	}
	v, err := attack.ParseVector(req.Vector)
	if err != nil {
		respondMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	s.command(func(ctx context.Context) error {
		return s.replay.SetAttack(ctx, v)
	})(w, r)
}

func (s *Server) handleToggleAttack(w http.ResponseWriter, r *http.Request) {
	v, err := attack.ParseVector(mux.Vars(r)["vector"])
	if err != nil {
		respondMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	s.command(func(ctx context.Context) error {
		_, err := s.replay.ToggleAttack(ctx, v)
		return err
	})(w, r)
}

func (s *Server) handleMapMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid map mode request")
		return
	}
	m, err := frame.ParseMapMode(req.Mode)
	if err != nil {
		respondMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	s.command(func(ctx context.Context) error {
		return s.replay.SetMapMode(ctx, m)
	})(w, r)
}

type analysisResponse struct {
	Threshold float64         `json:"threshold"`
	Anomalies int             `json:"anomalies"`
	Entries   []overlay.Entry `json:"entries"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.submitLimit)
	defer cancel()
	o, err := s.replay.Submit(ctx)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, analysisResponse{
		Threshold: o.Threshold(),
		Anomalies: o.Len(),
		Entries:   o.Entries(),
	})
}

type findingsResponse struct {
	Threshold float64           `json:"threshold"`
	Findings  []findingResponse `json:"findings"`
}

type findingResponse struct {
	overlay.Finding
	Report string `json:"report"`
}

func (s *Server) handleFindings(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.reqTimeout)
	defer cancel()
	snap, err := s.replay.Snapshot(ctx)
	if err != nil {
		s.respondError(w, err)
		return
	}
	ret := findingsResponse{
		Threshold: snap.Threshold,
		Findings:  make([]findingResponse, 0, len(snap.Findings)),
	}
	for i := range snap.Findings {
		ret.Findings = append(ret.Findings, findingResponse{
			Finding: snap.Findings[i],
			Report:  overlay.Explain(&snap.Findings[i], snap.Threshold),
		})
	}
	respondJSON(w, http.StatusOK, ret)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.reqTimeout)
	defer cancel()
	s.respondState(ctx, w)
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.reqTimeout)
	defer cancel()
	f, err := s.replay.LastFrame(ctx)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if f == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondJSON(w, http.StatusOK, f)
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	c, ok := parseChannel(mux.Vars(r)["channel"])
	if !ok {
		respondMessage(w, http.StatusNotFound, "unknown channel")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.reqTimeout)
	defer cancel()
	points, err := s.replay.Series(ctx, c)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, points)
}

func parseChannel(name string) (model.Channel, bool) {
	for _, c := range model.ScalarChannels {
		if strings.EqualFold(string(c), name) {
			return c, true
		}
	}
	// nGear is also accepted as gear
	if strings.EqualFold(name, "gear") {
		return model.ChannelGear, true
	}
	return "", false
}

func (s *Server) respondState(ctx context.Context, w http.ResponseWriter) {
	st, err := s.replay.State(ctx)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondMessage(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.l.Warn("request failed", log.ErrorField(err))
	}
	respondMessage(w, status, err.Error())
}

func statusOf(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, model.ErrInvalidSessionData):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNoData), errors.Is(err, engine.ErrSessionChanged):
		return http.StatusConflict
	case errors.Is(err, engine.ErrNoAnalyzer), errors.Is(err, engine.ErrNoLoader):
		return http.StatusNotImplemented
	case errors.Is(err, model.ErrAnalysisRequestFailed), errors.Is(err, session.ErrLoadFailed):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewCORS returns a permissive setup, the control surface is meant for local
// dashboards.
func NewCORS() *cors.Cors {
	return cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
		},
		AllowOriginFunc: func(origin string) bool {
			return true
		},
		AllowedHeaders: []string{"*"},
		MaxAge:         int(2 * time.Hour / time.Second),
	})
}
