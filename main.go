package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/gstgraph/cmd"
	"github.com/smazurov/gstgraph/internal/api"
	"github.com/smazurov/gstgraph/internal/config"
	"github.com/smazurov/gstgraph/internal/events"
	"github.com/smazurov/gstgraph/internal/graph"
	"github.com/smazurov/gstgraph/internal/logging"
	"github.com/smazurov/gstgraph/internal/metrics/collectors"
	"github.com/smazurov/gstgraph/internal/metrics/exporters"
	"github.com/smazurov/gstgraph/internal/session"
	"github.com/smazurov/gstgraph/internal/systemd"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port           string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`
	Framework      string `help:"Media framework (gstreamer, fake)" default:"gstreamer" toml:"server.framework" env:"SERVER_FRAMEWORK"`
	MetricsEnabled bool   `help:"Serve Prometheus metrics at /metrics" default:"true" toml:"server.metrics_enabled" env:"SERVER_METRICS_ENABLED"`
	CORSOrigin     string `help:"Access-Control-Allow-Origin value" default:"*" toml:"server.cors_origin" env:"SERVER_CORS_ORIGIN"`

	// Session settings
	OutputDir            string `help:"Directory for persisted and preview files" default:"output" toml:"session.output_dir" env:"SESSION_OUTPUT_DIR"`
	QueueCapacity        int    `help:"Preview frames kept per session before dropping" default:"10000" toml:"session.queue_capacity" env:"SESSION_QUEUE_CAPACITY"`
	StopTimeout          string `help:"How long stop waits for end-of-stream" default:"5s" toml:"session.stop_timeout" env:"SESSION_STOP_TIMEOUT"`
	FrameTimeout         string `help:"Default wait of the frame endpoint" default:"1s" toml:"session.frame_timeout" env:"SESSION_FRAME_TIMEOUT"`
	IntermediateInterval string `help:"Interval between intermediate preview JPEGs (0 disables)" default:"1s" toml:"session.intermediate_interval" env:"SESSION_INTERMEDIATE_INTERVAL"`
	JPEGQuality          int    `help:"JPEG quality of preview frames and files" default:"85" toml:"session.jpeg_quality" env:"SESSION_JPEG_QUALITY"`
	H264Bitrate          int    `help:"x264enc bitrate in kbit/s" default:"2000" toml:"session.h264_bitrate" env:"SESSION_H264_BITRATE"`
	WatchDefaults        bool   `help:"Reload [defaults] when the config file changes" default:"true" toml:"session.watch_defaults" env:"SESSION_WATCH_DEFAULTS"`

	// Logging settings
	LoggingLevel       string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat      string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingHistorySize int    `help:"Log entries kept for /api/logs" default:"1000" toml:"logging.history_size" env:"LOGGING_HISTORY_SIZE"`
	LoggingSession     string `help:"Session logging level" default:"info" toml:"logging.session" env:"LOGGING_SESSION"`
	LoggingGstreamer   string `help:"GStreamer adapter logging level" default:"info" toml:"logging.gstreamer" env:"LOGGING_GSTREAMER"`
	LoggingAPI         string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingHTTP        string `help:"HTTP request logging level" default:"info" toml:"logging.http" env:"LOGGING_HTTP"`
	LoggingConfig      string `help:"Config reload logging level" default:"info" toml:"logging.config" env:"LOGGING_CONFIG"`
}

func parseDuration(name, value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("Invalid duration, using default", "option", name, "value", value, "default", fallback)
		return fallback
	}
	return d
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:       opts.LoggingLevel,
			Format:      opts.LoggingFormat,
			HistorySize: opts.LoggingHistorySize,
			Modules: map[string]string{
				"session":   opts.LoggingSession,
				"gstreamer": opts.LoggingGstreamer,
				"api":       opts.LoggingAPI,
				"http":      opts.LoggingHTTP,
				"config":    opts.LoggingConfig,
			},
		})
		logger := logging.GetLogger("main")

		eventBus := events.New()
		logging.SetSink(func(e logging.Entry) {
			eventBus.Publish(api.LogEvent(e))
		})

		framework, err := cmd.NewFramework(opts.Framework, opts.LoggingGstreamer == "debug")
		if err != nil {
			logger.Error("Failed to initialize media framework", "framework", opts.Framework, "error", err)
			os.Exit(1)
		}

		sessionOpts := session.DefaultOptions()
		sessionOpts.Framework = framework
		sessionOpts.Bus = eventBus
		sessionOpts.QueueCapacity = opts.QueueCapacity
		sessionOpts.StopTimeout = parseDuration("stop-timeout", opts.StopTimeout, sessionOpts.StopTimeout)
		sessionOpts.IntermediateInterval = parseDuration("intermediate-interval", opts.IntermediateInterval, sessionOpts.IntermediateInterval)
		sessionOpts.Graph = graph.DefaultOptions()
		sessionOpts.Graph.OutputDir = opts.OutputDir
		sessionOpts.Graph.Encoders.JPEGQuality = opts.JPEGQuality
		sessionOpts.Graph.Encoders.H264Bitrate = opts.H264Bitrate
		registry := session.NewRegistry(sessionOpts)

		if defaults, loadErr := config.LoadDefaults(opts.Config); loadErr != nil {
			logger.Warn("Failed to load session defaults", "error", loadErr)
		} else if setErr := registry.SetDefaults(defaults); setErr != nil {
			logger.Warn("Ignoring invalid session defaults", "error", setErr)
		}

		var watcher *config.Watcher[session.Config]
		if opts.WatchDefaults {
			watcher = config.NewWatcher(opts.Config, config.LoadDefaults, logging.GetLogger("config"))
			watcher.OnReload(func(cfg session.Config) {
				if setErr := registry.SetDefaults(cfg); setErr != nil {
					logger.Warn("Ignoring invalid session defaults", "error", setErr)
					return
				}
				logger.Info("Session defaults reloaded", "path", opts.Config)
				eventBus.Publish(events.DefaultsReloadedEvent{
					Path:      opts.Config,
					Timestamp: time.Now().UTC().Format(time.RFC3339),
				})
			})
		}

		metricsCollector := collectors.NewBusCollector(eventBus)

		apiOpts := api.Options{
			Registry:     registry,
			Bus:          eventBus,
			Framework:    framework.Name(),
			FrameTimeout: parseDuration("frame-timeout", opts.FrameTimeout, time.Second),
			JPEGQuality:  opts.JPEGQuality,
			CORS:         api.DefaultCORSConfig(),
		}
		apiOpts.CORS.AllowOrigin = opts.CORSOrigin
		if opts.MetricsEnabled {
			apiOpts.MetricsHandler = exporters.HTTPHandler()
		}
		server := api.NewServer(apiOpts)
		notifier := systemd.NewNotifier(logger)

		hooks.OnStart(func() {
			if opts.MetricsEnabled {
				metricsCollector.Start()
			}
			if watcher != nil {
				if startErr := watcher.Start(); startErr != nil {
					logger.Warn("Failed to watch config file", "path", opts.Config, "error", startErr)
				}
			}

			notifier.Ready(fmt.Sprintf("serving on %s with %s", opts.Port, framework.Name()))
			logger.Info("Starting HTTP server", "port", opts.Port, "framework", framework.Name(), "output_dir", opts.OutputDir)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			notifier.Stopping()
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			// Drain every session so persisted files are finalized.
			if closeErr := registry.Close(sessionOpts.StopTimeout + sessionOpts.OutputWait); closeErr != nil {
				logger.Error("Error stopping sessions", "error", closeErr)
			}

			if watcher != nil {
				if stopErr := watcher.Stop(); stopErr != nil {
					logger.Warn("Error stopping config watcher", "error", stopErr)
				}
			}
			metricsCollector.Stop()
			logging.SetSink(nil)
		})
	})

	cli.Root().AddCommand(cmd.CreateRunCmd())
	cli.Root().AddCommand(cmd.CreateInspectCmd())

	cli.Run()
}
