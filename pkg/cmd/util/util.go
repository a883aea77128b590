// Package util wires the configuration values into engine components. It is
// shared by the sentinel commands.
package util

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	otlpruntime "go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/mpapenbr/sentinel-replay/log"
	"github.com/mpapenbr/sentinel-replay/pkg/client/analysis"
	"github.com/mpapenbr/sentinel-replay/pkg/client/session"
	"github.com/mpapenbr/sentinel-replay/pkg/config"
	"github.com/mpapenbr/sentinel-replay/pkg/engine"
	"github.com/mpapenbr/sentinel-replay/pkg/engine/attack"
	"github.com/mpapenbr/sentinel-replay/pkg/engine/playback"
	"github.com/mpapenbr/sentinel-replay/pkg/engine/sector"
	"github.com/mpapenbr/sentinel-replay/pkg/output"
	"github.com/mpapenbr/sentinel-replay/pkg/output/natsout"
	"github.com/mpapenbr/sentinel-replay/pkg/utils"
)

func ParseLogLevel(l string, defaultVal log.Level) log.Level {
	level, err := log.ParseLevel(l)
	if err != nil {
		return defaultVal
	}
	return level
}

// SetupLogger installs the default logger according to LogFormat, LogLevel and
// LogFilter.
func SetupLogger() error {
	var logger *log.Logger
	switch config.LogFormat {
	case "json":
		logger = log.New(
			os.Stderr,
			ParseLogLevel(config.LogLevel, log.InfoLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))
	default:
		logger = log.DevLogger(
			os.Stderr,
			ParseLogLevel(config.LogLevel, log.DebugLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))
	}
	if config.LogFilter != "" {
		filtered, err := logger.WithFilter(config.LogFilter)
		if err != nil {
			return fmt.Errorf("log filter: %w", err)
		}
		logger = filtered
	}
	log.ResetDefault(logger)
	return nil
}

// StartTelemetry sets up exporters and runtime metrics if enabled. A nil
// Telemetry is returned otherwise or on failure.
func StartTelemetry(ctx context.Context) *config.Telemetry {
	if !config.EnableTelemetry {
		return nil
	}
	log.Info("Enabling telemetry")
	telemetry, err := config.SetupTelemetry(ctx)
	if err != nil {
		log.Warn("Could not setup telemetry", log.ErrorField(err))
		return nil
	}
	err = otlpruntime.Start(otlpruntime.WithMinimumReadMemStatsInterval(time.Second))
	if err != nil {
		log.Warn("Could not start runtime metrics", log.ErrorField(err))
	}
	return telemetry
}

func ParseDuration(s string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

// EngineOptions collects the engine settings from the configuration.
func EngineOptions() []engine.Option {
	clockOpts := []playback.Option{
		playback.WithStartOffset(config.StartOffset),
	}
	if config.SpeedFactor > 0 {
		clockOpts = append(clockOpts, playback.WithSpeed(config.SpeedFactor))
	}
	if config.SamplePeriod != "" {
		clockOpts = append(clockOpts,
			playback.WithSamplePeriod(ParseDuration(config.SamplePeriod, playback.DefaultSamplePeriod)))
	}
	params := attack.DefaultParams()
	if config.ThrottleBias != 0 {
		params.ThrottleBias = config.ThrottleBias
	}
	if config.GpsOffset != 0 {
		params.GpsOffset = config.GpsOffset
	}
	ret := []engine.Option{
		engine.WithClockOptions(clockOpts...),
		engine.WithSectorOptions(
			sector.WithSector3Margin(config.Sector3Margin),
			sector.WithNeutralColor(config.NeutralColor)),
		engine.WithAttackParams(params),
	}
	if config.Timesteps > 0 {
		ret = append(ret, engine.WithTimesteps(config.Timesteps))
	}
	return ret
}

// NewLoader returns the session loader: the fixture file if configured, the
// session service otherwise. Remote sessions are cached.
func NewLoader() session.Loader {
	if config.SessionFile != "" {
		return session.NewFileLoader(config.SessionFile)
	}
	if config.SessionURL == "" {
		return nil
	}
	l := session.NewHTTPLoader(config.SessionURL)
	ttl := ParseDuration(config.SessionCacheTTL, 0)
	if ttl == 0 {
		return l
	}
	return session.NewCachedLoader(l, ttl)
}

// NewAnalyzer returns the analysis client, nil if no service is configured.
func NewAnalyzer() *analysis.Client {
	if config.AnalysisURL == "" {
		return nil
	}
	opts := []analysis.Option{
		analysis.WithHTTPClient(&http.Client{
			Timeout: ParseDuration(config.AnalysisTimeout, 2*time.Minute),
		}),
	}
	if config.AnalysisMinVersion != "" {
		opts = append(opts, analysis.WithMinVersion(config.AnalysisMinVersion))
	}
	return analysis.New(config.AnalysisURL, opts...)
}

// NewNatsSink connects to NatsURL. The returned close function drains the
// connection.
func NewNatsSink() (output.Sink, func(), error) {
	if config.NatsURL == "" {
		return output.Discard, func() {}, nil
	}
	var opts []natsout.Option
	if config.NatsSubjectPrefix != "" {
		opts = append(opts, natsout.WithSubjectPrefix(config.NatsSubjectPrefix))
	}
	pub, nc, err := natsout.Connect(config.NatsURL, opts...)
	if err != nil {
		return nil, nil, err
	}
	return pub, func() {
		if err := nc.Drain(); err != nil {
			log.Warn("nats drain", log.ErrorField(err))
		}
	}, nil
}

// WaitForRequiredServices blocks until the configured remote services accept
// connections. It fails after WaitForServices.
func WaitForRequiredServices(ctx context.Context) error {
	timeout := ParseDuration(config.WaitForServices, 60*time.Second)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	check := func(fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}
	if addr := utils.ExtractFromNatsURL(config.NatsURL); addr != "" {
		check(func() error { return utils.WaitForTCP(ctx, addr, timeout) })
	}
	for _, u := range []string{config.SessionURL, config.AnalysisURL} {
		if u != "" {
			check(func() error { return utils.WaitForHTTPResponse(ctx, u, timeout) })
		}
	}
	log.Debug("Waiting for connection checks to return")
	wg.Wait()
	if len(errs) > 0 {
		return fmt.Errorf("required services not ready: %v", errs)
	}
	log.Debug("Required services are available")
	return nil
}
