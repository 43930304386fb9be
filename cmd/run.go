package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/gstgraph/internal/config"
	"github.com/smazurov/gstgraph/internal/events"
	"github.com/smazurov/gstgraph/internal/graph"
	"github.com/smazurov/gstgraph/internal/logging"
	"github.com/smazurov/gstgraph/internal/media"
	"github.com/smazurov/gstgraph/internal/session"
)

// runOptions controls a headless run.
type runOptions struct {
	OutputDir   string
	Duration    time.Duration // 0 runs until the source finishes or ctx ends
	Frames      int           // stop after this many preview frames; 0 = no limit
	StopTimeout time.Duration
}

// CreateRunCmd creates the run command.
func CreateRunCmd() *cobra.Command {
	var (
		flags     sessionFlags
		framework string
		ro        runOptions
		logJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one session without the HTTP server",
		Long: `Builds a session from the [defaults] table of the config file and the flags, plays it ` +
			`until the source finishes, the duration elapses, enough preview frames were taken or ` +
			`the process is interrupted, then stops it gracefully and prints a summary.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logCfg := config.LoadLoggingConfig(flags.configFile)
			if logJSON {
				logCfg.Format = "json"
			}
			logging.Initialize(logCfg)

			cfg, err := config.LoadDefaults(flags.configFile)
			if err != nil {
				return err
			}
			flags.apply(cmd, &cfg)

			fw, err := NewFramework(framework, logCfg.Level == "debug")
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSession(ctx, fw, cfg, ro, cmd.OutOrStdout())
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&framework, "framework", "gstreamer", "Media framework: gstreamer or fake")
	cmd.Flags().StringVarP(&ro.OutputDir, "output-dir", "o", "output", "Directory for persisted files")
	cmd.Flags().DurationVarP(&ro.Duration, "duration", "d", 0, "Stop after this long (0 = until the source finishes)")
	cmd.Flags().IntVar(&ro.Frames, "frames", 0, "Stop after taking this many preview frames")
	cmd.Flags().DurationVar(&ro.StopTimeout, "stop-timeout", 5*time.Second, "How long to wait for end-of-stream on stop")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Log as JSON")
	return cmd
}

func runSession(ctx context.Context, fw media.Framework, cfg session.Config, ro runOptions, out io.Writer) error {
	logger := logging.GetLogger("main")
	bus := events.New()

	opts := session.DefaultOptions()
	opts.Framework = fw
	opts.Bus = bus
	opts.Graph.OutputDir = ro.OutputDir
	if ro.StopTimeout > 0 {
		opts.StopTimeout = ro.StopTimeout
	}
	reg := session.NewRegistry(opts)
	defer func() {
		if err := reg.Close(opts.StopTimeout); err != nil {
			logger.Warn("Failed to close sessions", "error", err)
		}
	}()

	ended := make(chan struct{}, 1)
	unsubscribe := events.Subscribe(bus, func(e events.SessionStatusChangedEvent) {
		if e.To == string(session.StatusStopped) || e.To == string(session.StatusError) {
			select {
			case ended <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	c, err := reg.CreateWithConfig("", cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "graph    %s\n", graph.Describe(c.Graph()))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if ro.Duration > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, ro.Duration)
		defer cancel()
	}

	if err := c.Start(runCtx); err != nil {
		return fmt.Errorf("start session %s: %w", c.ID(), err)
	}
	if cfg.Preview {
		go takeFrames(runCtx, c, ro.Frames, cancel)
	}

	select {
	case <-runCtx.Done():
	case <-ended:
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), opts.StopTimeout+opts.OutputWait)
	defer stopCancel()
	stopErr := c.Stop(stopCtx)

	snap := c.Snapshot()
	printSummary(out, snap)
	if stopErr != nil {
		return fmt.Errorf("session %s: %w", c.ID(), stopErr)
	}
	if snap.Status == session.StatusError {
		return fmt.Errorf("session %s: %w", c.ID(), c.Err())
	}
	return nil
}

// takeFrames consumes preview frames so the queue reflects live output,
// calling done once limit frames were taken.
func takeFrames(ctx context.Context, c *session.Controller, limit int, done func()) {
	taken := 0
	for ctx.Err() == nil {
		if _, err := c.FetchFrame(ctx, time.Second); err != nil {
			continue
		}
		taken++
		if limit > 0 && taken >= limit {
			done()
			return
		}
	}
}

func printSummary(out io.Writer, s session.Snapshot) {
	fmt.Fprintf(out, "session  %s\n", s.ID)
	fmt.Fprintf(out, "status   %s\n", s.Status)
	fmt.Fprintf(out, "frames   in=%d out=%d dropped=%d conversion_errors=%d\n",
		s.Counters.FramesIn, s.Counters.FramesOut, s.Counters.Dropped, s.Counters.ConversionErrors)
	switch {
	case s.Output == nil:
	case s.Output.Available:
		fmt.Fprintf(out, "output   %s (%d bytes)\n", s.Output.Path, s.Output.Size)
	default:
		fmt.Fprintf(out, "output   %s (not finalized)\n", s.Output.Path)
	}
	if s.LastError != "" {
		fmt.Fprintf(out, "error    %s\n", s.LastError)
	}
}
