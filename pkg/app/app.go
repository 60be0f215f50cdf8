// Package app wires the session sequencer to the dial, the dataset store,
// the operator console and the session observers, and drives it at the
// configured tick rate.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dialstudy/dialstudy/internal/clock"
	"github.com/dialstudy/dialstudy/pkg/bridge"
	"github.com/dialstudy/dialstudy/pkg/checkpoint"
	"github.com/dialstudy/dialstudy/pkg/config"
	"github.com/dialstudy/dialstudy/pkg/dial"
	apperrors "github.com/dialstudy/dialstudy/pkg/errors"
	"github.com/dialstudy/dialstudy/pkg/experiment"
	"github.com/dialstudy/dialstudy/pkg/lifecycle"
	"github.com/dialstudy/dialstudy/pkg/monitor"
	"github.com/dialstudy/dialstudy/pkg/sequencer"
	"github.com/dialstudy/dialstudy/pkg/sink"
	"github.com/dialstudy/dialstudy/pkg/storage"
	"github.com/dialstudy/dialstudy/pkg/telemetry"
	"github.com/dialstudy/dialstudy/pkg/tui"
	"github.com/dialstudy/dialstudy/pkg/validation"
	"github.com/dialstudy/dialstudy/pkg/video"
	"github.com/dialstudy/dialstudy/pkg/watch"
)

// Options configures an App. Nil collaborators are built from Config.
type Options struct {
	Config  *config.Config
	Logger  *zap.Logger
	Version string

	// Operator console streams; default to stdin and stdout.
	In  io.Reader
	Out io.Writer

	Document    *experiment.Document
	Device      dial.Device
	Store       storage.ObjectStorage
	Checkpoints checkpoint.Backend
	Clock       clock.Clock
}

// App is one running experiment station.
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	seq      *sequencer.Sequencer
	device   dial.Device
	keys     *dial.Queue // keyboard driver, fed by the console
	console  *tui.Console
	tracker  *checkpoint.Tracker
	reloader *watch.Reloader
	monitor  *monitor.Monitor
	shutdown *lifecycle.ShutdownManager
}

// New builds every collaborator. Failures here are fatal startup errors.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	in, out := opts.In, opts.Out
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}

	shutdownCfg := lifecycle.DefaultShutdownConfig()
	shutdownCfg.Logger = logger

	a := &App{
		cfg:      cfg,
		logger:   logger.Named("app"),
		console:  tui.NewConsole(in, out),
		shutdown: lifecycle.NewShutdownManager(shutdownCfg),
	}
	a.shutdown.Register("logger", func(context.Context) error {
		_ = logger.Sync()
		return nil
	})

	doc := opts.Document
	if doc == nil {
		var err error
		if doc, err = experiment.Load(cfg.Session.ExperimentFile); err != nil {
			return nil, err
		}
	}
	if err := preflight(cfg, doc, logger); err != nil {
		return nil, err
	}

	store := opts.Store
	if store == nil {
		var err error
		if store, err = OpenStore(ctx, cfg, logger); err != nil {
			return nil, err
		}
	}

	a.device = opts.Device
	if a.device == nil {
		var err error
		if a.device, a.keys, err = openDevice(cfg, logger); err != nil {
			return nil, err
		}
	} else if q, ok := a.device.(*dial.Queue); ok {
		a.keys = q
	}
	a.shutdown.RegisterCloser("dial", a.device)

	observers := []sequencer.Observer{sequencer.NewLogObserver(logger)}

	backend := opts.Checkpoints
	if backend == nil {
		var err error
		if backend, err = a.openCheckpoints(ctx, cfg, logger); err != nil {
			return nil, err
		}
	}
	if backend != nil {
		a.tracker = checkpoint.NewTracker(backend, logger, 0)
		observers = append(observers, a.tracker)
	}

	if cfg.Telemetry.Enabled {
		otlpCfg := telemetry.DefaultOTLPConfig(cfg.Telemetry.ServiceName)
		otlpCfg.Endpoint = cfg.Telemetry.Endpoint
		otlpCfg.InsecureTLS = cfg.Telemetry.Insecure
		otlpCfg.SamplingRatio = cfg.Telemetry.SampleRate
		otlpCfg.ServiceVersion = opts.Version

		exporter := telemetry.NewOTLPExporter(otlpCfg)
		if err := exporter.Init(ctx); err != nil {
			return nil, fmt.Errorf("telemetry: %w", err)
		}
		a.shutdown.Register("otlp", exporter.Shutdown)

		spans := telemetry.NewSessionObserver(exporter.Tracer())
		a.shutdown.Register("session-spans", func(context.Context) error {
			spans.Close()
			return nil
		})
		observers = append(observers, spans)
	}

	if cfg.Monitor.Addr != "" {
		a.monitor = monitor.New(logger)
		observers = append(observers, a.monitor)
	}

	if a.tracker != nil {
		a.shutdown.Register("checkpoints", func(context.Context) error {
			a.tracker.Close()
			return nil
		})
	}

	a.seq = sequencer.New(sequencer.Options{
		Document:       doc,
		Sink:           sink.New(store, logger),
		Bridge:         bridge.New(a.device, logger),
		Opener:         videoLibrary(cfg, doc, clk),
		Clock:          clk,
		Observer:       sequencer.NewMultiObserver(observers...),
		Logger:         logger,
		Seed:           cfg.Session.Seed,
		ExitAfterFinal: cfg.Session.ExitAfterFinal,
	})

	if cfg.Session.WatchFile && doc.Path() != "" {
		a.reloader = watch.NewReloader(doc.Path(), a.seq, logger)
	}

	return a, nil
}

// Monitor returns the HTTP monitor, or nil when it is disabled.
func (a *App) Monitor() *monitor.Monitor {
	return a.monitor
}

// Sequencer exposes the session sequencer.
func (a *App) Sequencer() *sequencer.Sequencer {
	return a.seq
}

// Run drives the session until the sequencer is done, the operator quits,
// ctx is cancelled, or a fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	if err := a.seq.Start(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	if a.tracker != nil {
		g.Go(func() error {
			return a.tracker.Run(ctx)
		})
	}

	g.Go(func() error {
		return a.console.Run(ctx)
	})

	if a.reloader != nil {
		g.Go(func() error {
			if err := a.reloader.Run(ctx, 500*time.Millisecond); err != nil {
				a.logger.Warn("experiment watch stopped", zap.Error(err))
			}
			return nil
		})
	}

	if a.monitor != nil {
		g.Go(func() error {
			if err := a.monitor.Run(ctx, a.cfg.Monitor.Addr); err != nil {
				a.logger.Warn("monitor stopped", zap.Error(err))
			}
			return nil
		})
	}

	// Session loop. Ending it cancels the helpers above.
	g.Go(func() error {
		defer cancel()
		if a.tracker != nil {
			defer a.tracker.Close()
		}
		return a.loop(ctx)
	})

	return g.Wait()
}

func (a *App) loop(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.TickInterval())
	defer ticker.Stop()

	a.draw()
	for {
		select {
		case <-ctx.Done():
			return nil

		case in, ok := <-a.console.Inputs():
			if !ok || in.Quit {
				a.logger.Info("operator quit")
				return nil
			}
			if err := a.handleInput(ctx, in); err != nil {
				return err
			}
			a.draw()

		case <-ticker.C:
			var ev *dial.Event
			if e, ok := a.device.PopEvent(); ok {
				ev = &e
			}
			if err := a.seq.Tick(ctx, ev); err != nil {
				return err
			}
			if a.seq.Done() {
				a.logger.Info("session finished")
				return nil
			}
			a.draw()
		}
	}
}

func (a *App) handleInput(ctx context.Context, in tui.Input) error {
	if in.Dismiss {
		a.seq.DismissNotice()
	}
	if a.keys != nil {
		for _, ev := range in.Dial {
			a.keys.Push(ev)
		}
	}
	if in.UI != nil {
		return a.seq.HandleUI(ctx, *in.UI)
	}
	return nil
}

func (a *App) draw() {
	notice, _ := a.seq.Notice()
	a.console.SetScale(a.seq.Scaling())
	a.console.Draw(a.seq.View(), notice)
}

// Shutdown runs the cleanup hooks.
func (a *App) Shutdown(ctx context.Context) error {
	return a.shutdown.Shutdown(ctx)
}

// OpenStore returns the local dataset store, mirrored to S3 when enabled.
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.ObjectStorage, error) {
	local, err := storage.NewLocalStorage(cfg.Output.Dir)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidConfig, "cannot open output directory").
			WithContext("dir", cfg.Output.Dir)
	}
	if !cfg.Output.S3.Enabled {
		return local, nil
	}

	remote, err := openS3(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return storage.NewMirror(logger.Named("storage"), local, remote), nil
}

// SessionPrefix keys session checkpoints in the bucket, apart from the
// participant directories.
const SessionPrefix = "_sessions/"

func openS3(ctx context.Context, cfg *config.Config) (*storage.S3Storage, error) {
	s3cfg := storage.DefaultS3Config(cfg.Output.S3.Bucket, cfg.Output.S3.Region)
	s3cfg.Prefix = cfg.Output.S3.Prefix
	s3cfg.Endpoint = cfg.Output.S3.Endpoint
	s3cfg.UsePathStyle = cfg.Output.S3.UsePathStyle
	s3cfg.AccessKeyID = cfg.Output.S3.AccessKeyID
	s3cfg.SecretAccessKey = cfg.Output.S3.SecretAccessKey

	remote, err := storage.NewS3Storage(ctx, s3cfg)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidConfig, "cannot open s3 bucket").
			WithContext("bucket", s3cfg.Bucket)
	}
	return remote, nil
}

func openDevice(cfg *config.Config, logger *zap.Logger) (dial.Device, *dial.Queue, error) {
	switch cfg.Dial.Driver {
	case "serial":
		sc := dial.DefaultSerialConfig(cfg.Dial.Device)
		if cfg.Dial.Baud > 0 {
			sc.BaudRate = cfg.Dial.Baud
		}
		dev, err := dial.OpenSerial(sc, logger)
		if err != nil {
			return nil, nil, apperrors.DeviceFailed(cfg.Dial.Device, err)
		}
		return dev, nil, nil
	default:
		q := dial.NewQueue(256)
		return q, q, nil
	}
}

// openCheckpoints returns nil when checkpoints are disabled. A redis or s3
// backend is paired with the file backend so status works offline.
func (a *App) openCheckpoints(ctx context.Context, cfg *config.Config, logger *zap.Logger) (checkpoint.Backend, error) {
	if cfg.Checkpoint.Backend == "none" {
		return nil, nil
	}
	file, err := checkpoint.NewFileBackend(cfg.Checkpoint.Dir)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCheckpoint, "cannot open checkpoint directory").
			WithContext("dir", cfg.Checkpoint.Dir)
	}

	switch cfg.Checkpoint.Backend {
	case "redis":
		rdb, err := checkpoint.NewRedisBackend(RedisConfig(cfg))
		if err != nil {
			logger.Warn("redis checkpoints unavailable, using files only",
				zap.String("addr", cfg.Checkpoint.Redis.Addr),
				zap.Error(err))
			return file, nil
		}
		a.shutdown.RegisterCloser("redis", rdb)
		return checkpoint.NewMultiBackend(rdb, file), nil
	case "s3":
		remote, err := openS3(ctx, cfg)
		if err != nil {
			logger.Warn("s3 checkpoints unavailable, using files only",
				zap.String("bucket", cfg.Output.S3.Bucket),
				zap.Error(err))
			return file, nil
		}
		return checkpoint.NewMultiBackend(checkpoint.NewStoreBackend(remote, SessionPrefix), file), nil
	default:
		return file, nil
	}
}

// RedisConfig maps the checkpoint section onto the redis backend settings.
func RedisConfig(cfg *config.Config) checkpoint.RedisConfig {
	rc := checkpoint.DefaultRedisConfig(cfg.Checkpoint.Redis.Addr)
	rc.Password = cfg.Checkpoint.Redis.Password
	rc.Database = cfg.Checkpoint.Redis.DB
	if cfg.Checkpoint.Redis.Prefix != "" {
		rc.Prefix = cfg.Checkpoint.Redis.Prefix
	}
	if cfg.Checkpoint.Redis.TTL > 0 {
		rc.TTL = cfg.Checkpoint.Redis.TTL
	}
	return rc
}

// preflight logs every problem with the station. Missing media only
// stops the session when video.require_files is set.
func preflight(cfg *config.Config, doc *experiment.Document, logger *zap.Logger) error {
	r := validation.Check(doc, PreflightOptions(cfg))
	for _, w := range r.Warnings {
		logger.Warn("preflight", zap.String("problem", w))
	}
	if cfg.Video.RequireFiles {
		return r.Err()
	}
	for _, err := range r.Errors {
		logger.Warn("preflight", zap.Error(err))
	}
	return nil
}

// PreflightOptions locates the station's files for validation.Check.
func PreflightOptions(cfg *config.Config) validation.Options {
	return validation.Options{
		MediaRoot:    cfg.Video.Root,
		OutputDir:    cfg.Output.Dir,
		RequireMedia: cfg.Video.RequireFiles,
	}
}

func videoLibrary(cfg *config.Config, doc *experiment.Document, clk clock.Clock) *video.Library {
	return &video.Library{
		Root:            cfg.Video.Root,
		Clock:           clk,
		Durations:       doc.Durations(),
		DefaultDuration: cfg.Video.DefaultDuration,
		RequireFiles:    cfg.Video.RequireFiles,
	}
}
