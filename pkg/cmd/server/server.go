package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // by design
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/mpapenbr/sentinel-replay/log"
	"github.com/mpapenbr/sentinel-replay/pkg/cmd/util"
	"github.com/mpapenbr/sentinel-replay/pkg/config"
	"github.com/mpapenbr/sentinel-replay/pkg/endpoints/control"
	"github.com/mpapenbr/sentinel-replay/pkg/engine"
	"github.com/mpapenbr/sentinel-replay/pkg/output"
)

//nolint:funlen // by design
func NewServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "starts the replay engine with its HTTP control surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startServer(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&config.ServerAddr,
		"addr",
		"a",
		"localhost:8090",
		"listen address of the control surface")
	cmd.Flags().IntVar(&config.ProfilingPort,
		"profiling-port",
		0,
		"port to use for providing profiling data")
	cmd.Flags().StringVar(&config.AssetsHost,
		"assets-host",
		"",
		"location of the echarts assets used by the debug charts")
	cmd.Flags().IntVar(&config.FrameRate,
		"frame-rate",
		engine.DefaultFrameRate,
		"frames per second delivered while playing")
	return cmd
}

//nolint:funlen // by design
func startServer(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	if err := util.SetupLogger(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if config.ProfilingPort > 0 {
		startProfiling(config.ProfilingPort)
	}
	if err := util.WaitForRequiredServices(ctx); err != nil {
		return err
	}
	if telemetry := util.StartTelemetry(ctx); telemetry != nil {
		defer telemetry.Shutdown()
	}

	natsSink, closeNats, err := util.NewNatsSink()
	if err != nil {
		return err
	}
	defer closeNats()
	bcst := output.NewBroadcast("frames")
	defer bcst.Close()

	runnerOpts := []engine.RunnerOption{
		engine.WithScheduler(engine.NewFrameScheduler(engine.WithFrameRate(config.FrameRate))),
		engine.WithSink(output.Multi(bcst, natsSink)),
	}
	if loader := util.NewLoader(); loader != nil {
		runnerOpts = append(runnerOpts, engine.WithLoader(loader))
	}
	if analyzer := util.NewAnalyzer(); analyzer != nil {
		runnerOpts = append(runnerOpts, engine.WithAnalyzer(analyzer))
	}
	runner := engine.NewRunner(engine.New(util.EngineOptions()...), runnerOpts...)

	ctrlOpts := []control.Option{control.WithFrameSource(bcst)}
	if config.AssetsHost != "" {
		ctrlOpts = append(ctrlOpts, control.WithAssetsHost(config.AssetsHost))
	}
	ctrl := control.NewServer(runner, ctrlOpts...)

	watchSpeedFactor(ctx, runner)
	setupGoRoutinesDump()

	//nolint:gosec // by design
	server := &http.Server{
		Addr:    config.ServerAddr,
		Handler: h2c.NewHandler(ctrl.Handler(), &http2.Server{}),
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runner.Run(gCtx)
	})
	g.Go(func() error {
		log.Info("Starting control server", log.String("addr", config.ServerAddr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		log.Debug("Shutting down control server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		log.Error("server stopped", log.ErrorField(err))
		return err
	}
	log.Info("Server terminated")
	return nil
}

// watchSpeedFactor applies speed-factor changes of the config file while the
// server is running.
func watchSpeedFactor(ctx context.Context, runner *engine.Runner) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		f := viper.GetFloat64("speed-factor")
		if f <= 0 {
			return
		}
		log.Info("config changed, applying speed factor",
			log.String("file", e.Name), log.Float64("speed", f))
		if err := runner.SetSpeed(ctx, f); err != nil {
			log.Warn("could not apply speed factor", log.ErrorField(err))
		}
	})
	viper.WatchConfig()
}

func startProfiling(port int) {
	log.Info("Starting profiling server on port", log.Int("port", port))
	go func() {
		//nolint:gosec // by design
		err := http.ListenAndServe(fmt.Sprintf("localhost:%d", port), nil)
		if err != nil {
			log.Error("Profiling server stopped", log.ErrorField(err))
		}
	}()
}

func setupGoRoutinesDump() {
	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGQUIT)
		buf := make([]byte, 1<<20)
		for {
			<-sigs
			stacklen := runtime.Stack(buf, true)
			fmt.Printf("=== received SIGQUIT ===\n*** goroutine dump...\n%s\n*** end\n",
				buf[:stacklen])
		}
	}()
}
