package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/sentinel-replay/log"
	"github.com/mpapenbr/sentinel-replay/pkg/analysis/overlay"
	"github.com/mpapenbr/sentinel-replay/pkg/cmd/util"
	"github.com/mpapenbr/sentinel-replay/pkg/config"
	"github.com/mpapenbr/sentinel-replay/pkg/engine"
	"github.com/mpapenbr/sentinel-replay/pkg/engine/frame"
	"github.com/mpapenbr/sentinel-replay/pkg/model"
	"github.com/mpapenbr/sentinel-replay/pkg/output"
	"github.com/mpapenbr/sentinel-replay/pkg/render"
)

var (
	sessionKey model.SessionKey
	attacks    []string
	maxRuntime string
	submit     bool
	logEvery   uint64
	trackOut   string
	chartsOut  string
	mapMode    string
)

//nolint:funlen // by design
func NewReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "replays a session without control surface",
		Long: `Replays a session from the session service or a fixture file.
Attacks are applied according to --attack, e.g.
  --attack sensor-jam@5s --attack none@12s --attack gps-spoof@20s
After the replay the buffer can be submitted to the analysis service.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&sessionKey.Year, "year", 2023, "season of the session")
	cmd.Flags().StringVar(&sessionKey.Location, "location", "Bahrain", "event location")
	cmd.Flags().StringVar(&sessionKey.SessionType, "session-type", "R", "session identifier (R, Q, FP1, ...)")
	cmd.Flags().StringVar(&sessionKey.Driver, "driver", "VER", "driver code")
	cmd.Flags().StringArrayVar(&attacks, "attack", nil,
		"attack vector to activate at an offset after start (vector@duration)")
	cmd.Flags().StringVar(&maxRuntime, "max-runtime", "",
		"stop the replay after this duration even if the session has not ended")
	cmd.Flags().BoolVar(&submit, "submit", false,
		"submit the buffer to the analysis service after the replay")
	cmd.Flags().Uint64Var(&logEvery, "log-every", 60, "log every n-th frame (debug level)")
	cmd.Flags().StringVar(&trackOut, "track-out", "", "write the final track image to this file")
	cmd.Flags().StringVar(&chartsOut, "charts-out", "", "write the chart series html to this file")
	cmd.Flags().StringVar(&mapMode, "map-mode", string(frame.MapModeSectors),
		"map mode (sectors, speed, gear)")
	cmd.Flags().IntVar(&config.FrameRate, "frame-rate", engine.DefaultFrameRate,
		"frames per second")
	return cmd
}

//nolint:funlen,cyclop // by design
func runReplay(parent context.Context, out io.Writer) error {
	if parent == nil {
		parent = context.Background()
	}
	if err := util.SetupLogger(); err != nil {
		return err
	}
	schedule, err := ParseSchedule(attacks)
	if err != nil {
		return err
	}
	mode, err := frame.ParseMapMode(mapMode)
	if err != nil {
		return err
	}
	loader := util.NewLoader()
	if loader == nil {
		return errors.New("either --session-file or --session-url is required")
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
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

	ended := make(chan struct{})
	var endOnce sync.Once
	endSink := output.SinkFunc(func(_ context.Context, f *frame.Frame) error {
		if f.Ended {
			endOnce.Do(func() { close(ended) })
		}
		return nil
	})
	runnerOpts := []engine.RunnerOption{
		engine.WithScheduler(engine.NewFrameScheduler(engine.WithFrameRate(config.FrameRate))),
		engine.WithSink(output.Multi(
			output.LogSink(log.Default().Named("replay"), logEvery),
			natsSink,
			endSink)),
		engine.WithLoader(loader),
	}
	if analyzer := util.NewAnalyzer(); analyzer != nil {
		runnerOpts = append(runnerOpts, engine.WithAnalyzer(analyzer))
	}
	runner := engine.NewRunner(engine.New(util.EngineOptions()...), runnerOpts...)

	runCtx, cancelRun := context.WithCancel(ctx)
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = runner.Run(runCtx)
	}()
	defer func() {
		cancelRun()
		<-runDone
	}()

	if err := runner.LoadSession(ctx, sessionKey); err != nil {
		return fmt.Errorf("load %s: %w", sessionKey, err)
	}
	if err := runner.SetMapMode(ctx, mode); err != nil {
		return err
	}
	if err := runner.Start(ctx); err != nil {
		return err
	}
	log.Info("replay started", log.String("session", sessionKey.String()))
	stopSchedule := schedule.Run(ctx, runner)
	defer stopSchedule()

	if err := waitForEnd(ctx, runner, ended); err != nil {
		return err
	}
	if err := runner.Stop(ctx); err != nil {
		return err
	}

	if submit {
		if err := submitAndReport(ctx, runner, out); err != nil {
			return err
		}
	}
	return writeRenderings(ctx, runner)
}

func waitForEnd(ctx context.Context, runner *engine.Runner, ended <-chan struct{}) error {
	var limit <-chan time.Time
	if maxRuntime != "" {
		d, err := time.ParseDuration(maxRuntime)
		if err != nil {
			return fmt.Errorf("max-runtime: %w", err)
		}
		limit = time.After(d)
	}
	poll := time.NewTicker(time.Second)
	defer poll.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ended:
			return nil
		case <-limit:
			log.Info("max runtime reached")
			return nil
		case <-poll.C:
			// sessions too short for a segment stop without final frame
			st, err := runner.State(ctx)
			if err != nil {
				return err
			}
			if st.Playback == "stopped" {
				return nil
			}
		}
	}
}

func submitAndReport(ctx context.Context, runner *engine.Runner, out io.Writer) error {
	o, err := runner.Submit(ctx)
	if err != nil {
		return err
	}
	snap, err := runner.Snapshot(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "analysis: %d anomalies, threshold %.4f\n", o.Len(), o.Threshold())
	for i := range snap.Findings {
		fmt.Fprintf(out, "\n%s\n", overlay.Explain(&snap.Findings[i], snap.Threshold))
	}
	return nil
}

func writeRenderings(ctx context.Context, runner *engine.Runner) error {
	if trackOut == "" && chartsOut == "" {
		return nil
	}
	snap, err := runner.Snapshot(ctx)
	if err != nil {
		return err
	}
	write := func(path string, fn func(io.Writer) error) error {
		if path == "" {
			return nil
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := fn(f); err != nil {
			f.Close()
			return err
		}
		log.Info("written", log.String("file", path))
		return f.Close()
	}
	if err := write(trackOut, func(w io.Writer) error {
		return render.Track(w, snap, render.WithFormat(formatOf(trackOut)))
	}); err != nil {
		return err
	}
	return write(chartsOut, func(w io.Writer) error {
		return render.Charts(w, snap)
	})
}
