package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"hwmon-ng/internal/config"
	"hwmon-ng/internal/daemon"
	"hwmon-ng/internal/faults"
	"hwmon-ng/internal/logging"
	"hwmon-ng/internal/objmodel"
	"hwmon-ng/internal/web"
)

// loadConfig reads the config file and applies command-line overrides.
func loadConfig(f flags) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("config load failed: %w", err)
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.targetMode != "" {
		cfg.HWMon.TargetMode = f.targetMode
	}
	if f.listen != "" {
		cfg.Web.Enable = true
		cfg.Web.Listen = f.listen
	}
	if err := cfg.Normalize(); err != nil {
		return config.Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

type stack struct {
	log     *zap.Logger
	logs    *web.LogBuffer
	reg     *prometheus.Registry
	journal *faults.Journal
	bus     *objmodel.Server
	mgr     *daemon.Manager
}

// newStack wires the daemon from cfg. A nil fsys means the host filesystem.
func newStack(cfg config.Config, fsys afero.Fs, tee bool) (*stack, error) {
	s := &stack{logs: web.NewLogBuffer(cfg.Log.BufferLines)}
	var teeW io.Writer
	if tee {
		teeW = s.logs
	}
	log, err := logging.New(cfg.Log.Level, teeW)
	if err != nil {
		return nil, err
	}
	s.log = log

	s.reg = prometheus.NewRegistry()
	s.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.journal = faults.NewJournal(log.Named("faults"), s.reg, cfg.Faults.MaxEntries)
	s.bus = objmodel.NewServer()
	s.mgr = daemon.New(daemon.Options{
		Config:     cfg,
		FS:         fsys,
		Bus:        s.bus,
		Reporter:   s.journal,
		Log:        log.Named("hwmon"),
		Registerer: s.reg,
	})
	return s, nil
}

func runDaemon(ctx context.Context, f flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	s, err := newStack(cfg, nil, cfg.Web.Enable)
	if err != nil {
		return err
	}
	defer func() { _ = s.log.Sync() }()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	s.log.Info("hwmon-ng starting",
		zap.String("version", version),
		zap.String("hwmon", cfg.HWMon.Path),
		zap.Int("sensors", len(cfg.Sensors)),
	)
	if err := s.mgr.Setup(); err != nil {
		return err
	}

	if cfg.Web.Enable {
		h := web.Handler(web.Deps{
			Objects:  s.bus,
			Targets:  s.mgr,
			Faults:   s.journal,
			Logs:     s.logs,
			Gatherer: s.reg,
			Log:      s.log.Named("web"),
		})
		go func() {
			s.log.Info("web listening", zap.String("listen", cfg.Web.Listen))
			if err := web.Serve(ctx, cfg.Web.Listen, h); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Error("web server stopped", zap.Error(err))
				cancel()
			}
		}()
	}

	<-ctx.Done()
	s.log.Info("hwmon-ng stopping")
	return nil
}

// runProvision sets up every target once and writes the resulting snapshot,
// including any recorded device faults, to w.
func runProvision(w io.Writer, f flags, fsys afero.Fs) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	s, err := newStack(cfg, fsys, false)
	if err != nil {
		return err
	}
	defer func() { _ = s.log.Sync() }()

	if err := s.mgr.Setup(); err != nil {
		return err
	}
	entries, _ := s.journal.Snapshot()
	if entries == nil {
		entries = []faults.Entry{}
	}
	out := struct {
		daemon.Snapshot
		Faults []faults.Entry `json:"faults"`
	}{s.mgr.Snapshot(), entries}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
