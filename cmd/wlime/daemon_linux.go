//go:build linux

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"

	"wlime/internal/config"
	"wlime/internal/dispatch"
	"wlime/internal/event"
	"wlime/internal/health"
	"wlime/internal/ime"
	"wlime/internal/ipc"
	"wlime/internal/keymap"
	"wlime/internal/logging"
	"wlime/internal/metrics"
	"wlime/internal/wayland"
)

func runDaemon(cfgPath string) error {
	loader := config.NewLoader(cfgPath)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	defer loader.Close()

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()
	logging.SetDefault(logger)
	log := logger.Logger

	crash := logging.NewCrashHandler("", Version, "wlime", log)
	defer crash.Recover()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := metrics.Default()
	m := metrics.NewIME(registry)

	loop := dispatch.New(dispatch.DefaultQueueSize)
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	loopErr := make(chan error, 1)
	go func() {
		defer crash.Recover()
		loopErr <- loop.Run(loopCtx)
	}()

	wl, err := wayland.Connect(wayland.Config{
		Display: cfg.Wayland.Display,
		Seat:    cfg.Wayland.Seat,
	}, loop.Post, log)
	if err != nil {
		return err
	}

	compiler, err := keymap.NewXKBCompiler()
	if err != nil {
		wl.Close()
		return err
	}
	defer compiler.Close()

	manager := wayland.NewManager(wl, wayland.ManagerOptions{
		Compiler: compiler,
		ShmName:  cfg.Keyboard.ShmName,
		Logger:   log,
		Metrics:  m,
	})

	checker := health.NewChecker()
	checker.Register("dispatch", true, func(ctx context.Context) error {
		return loop.Call(ctx, func() error { return nil })
	})

	d := &daemon{logger: logger, log: log}
	checker.Register("input_method", true, func(ctx context.Context) error {
		return loop.Call(ctx, func() error {
			if d.im == nil {
				return ime.ErrNoInput
			}
			return nil
		})
	})
	if cfg.IPC.Enabled {
		svc, err := startIPC(cfg, &controller{loop: loop, im: d.inputMethod}, log)
		if err != nil {
			log.Warn("D-Bus service unavailable", slog.Any("error", err))
			checker.Register("dbus", false, func(context.Context) error { return err })
		} else {
			defer svc.stop()
			d.emitActive = svc.service.EmitActiveChanged
			checker.Register("dbus", false, func(context.Context) error {
				if !svc.conn.Connected() {
					return errors.New("session bus disconnected")
				}
				return nil
			})
		}
	}

	if err := loop.Call(ctx, func() error { return d.start(manager, cfg) }); err != nil {
		wl.Close()
		return err
	}

	wlCtx, stopWayland := context.WithCancel(context.Background())
	defer stopWayland()
	wlErr := make(chan error, 1)
	go func() {
		defer crash.Recover()
		wlErr <- wl.Run(wlCtx)
	}()

	if cfg.Metrics.Enabled {
		srv := startMetrics(cfg.Metrics.Listen, registry, checker, log)
		defer srv.Close()
	}

	loader.OnChange(func(next *config.Config) {
		if err := loop.Post(func() { d.apply(next) }); err != nil {
			log.Debug("config change dropped", slog.Any("error", err))
		}
	})
	if err := loader.Watch(); err != nil {
		log.Warn("config hot reload disabled", slog.Any("error", err))
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-loader.Errors():
				log.Warn("config reload", slog.Any("error", err))
			}
		}
	}()

	checker.SetReady(true)
	log.Info("wlime started", slog.String("version", Version))

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-wlErr:
		runErr = err
	case err := <-loopErr:
		runErr = err
	}
	checker.SetReady(false)
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := loop.Call(shutdownCtx, func() error { d.stop(); return nil }); err != nil {
		log.Debug("shutdown", slog.Any("error", err))
	}
	stopWayland()
	stopLoop()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(&logging.Config{
		Level:  level,
		Format: format,
		Output: cfg.Logging.Output,
		Rotate: logging.RotateConfig{
			Path:       cfg.Logging.FilePath,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
			Compress:   cfg.Logging.Compress,
		},
		Component: "wlime",
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return logger, nil
}

type ipcService struct {
	conn    *dbus.Conn
	service *ipc.Service
}

func startIPC(cfg *config.Config, ctrl ipc.Controller, log *slog.Logger) (*ipcService, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect to session bus: %w", err)
	}
	svc := ipc.NewService(conn, ctrl, ipc.ServiceConfig{BusName: cfg.IPC.BusName, Logger: log})
	if err := svc.Start(); err != nil {
		conn.Close()
		return nil, err
	}
	return &ipcService{conn: conn, service: svc}, nil
}

func (s *ipcService) stop() {
	s.service.Stop()
	s.conn.Close()
}

func startMetrics(listen string, registry *metrics.Registry, checker *health.Checker, log *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", registry.HTTPHandler())
	checker.Mount(mux)
	srv := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics listener", slog.Any("error", err))
		}
	}()
	log.Info("metrics listening", slog.String("listen", listen))
	return srv
}

// daemon holds the state owned by the dispatch loop.
type daemon struct {
	logger *logging.Logger
	log    *slog.Logger

	im             *ime.InputMethod
	cfg            *config.Config
	grabOnActivate bool
	emitActive     func(bool) error
}

func (d *daemon) inputMethod() *ime.InputMethod { return d.im }

func (d *daemon) start(provider ime.Provider, cfg *config.Config) error {
	transform, err := ime.ParseTransform(cfg.Keyboard.Transform)
	if err != nil {
		return err
	}
	d.cfg = cfg
	d.grabOnActivate = cfg.Keyboard.GrabOnActivate
	d.im = ime.New(provider, ime.Options{
		KeyboardFactory:      ime.TextEditFactory(transform),
		KeepPreeditOnRelease: !cfg.Keyboard.ClearPreeditOnRelease,
		Logger:               d.log,
	})
	d.im.Subscribe(d.handle)
	return nil
}

func (d *daemon) handle(ev event.Event) {
	switch ev.(type) {
	case event.Activated:
		d.notifyActive(true)
		if d.grabOnActivate {
			if err := d.im.GrabKeyboard(); err != nil {
				d.log.Info("grab on activate", slog.Any("error", err))
			}
		}
	case event.Deactivated:
		d.notifyActive(false)
	case event.Unavailable:
		d.log.Info("input method role unavailable")
	}
}

func (d *daemon) notifyActive(active bool) {
	if d.emitActive == nil {
		return
	}
	if err := d.emitActive(active); err != nil {
		d.log.Debug("emit ActiveChanged", slog.Any("error", err))
	}
}

// apply takes over the settings that can change without a restart.
func (d *daemon) apply(next *config.Config) {
	if level, err := logging.ParseLevel(next.Logging.Level); err == nil {
		d.logger.SetLevel(level)
	}
	if next.Keyboard.Transform != d.cfg.Keyboard.Transform {
		if transform, err := ime.ParseTransform(next.Keyboard.Transform); err == nil {
			d.im.SetKeyboardFactory(ime.TextEditFactory(transform))
		}
	}
	d.im.SetClearPreeditOnRelease(next.Keyboard.ClearPreeditOnRelease)
	d.grabOnActivate = next.Keyboard.GrabOnActivate

	if next.Wayland != d.cfg.Wayland || next.IPC != d.cfg.IPC || next.Metrics != d.cfg.Metrics ||
		next.Keyboard.ShmName != d.cfg.Keyboard.ShmName {
		d.log.Info("some configuration changes take effect after a restart")
	}
	d.cfg = next
	d.log.Info("configuration reloaded")
}

func (d *daemon) stop() {
	if d.im != nil {
		d.im.ReleaseInput()
	}
}
