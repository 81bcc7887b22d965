package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/abhisek/examrun/internal/config"
	"github.com/abhisek/examrun/internal/display"
	"github.com/abhisek/examrun/internal/logger"
	"github.com/abhisek/examrun/internal/questionset"
	"github.com/abhisek/examrun/internal/session"
	"github.com/abhisek/examrun/internal/store"
)

// env is everything a command needs, built from flags, config and the
// environment.
type env struct {
	cfg      *config.Config
	log      zerolog.Logger
	store    *store.Store
	loader   *questionset.CachedLoader
	registry session.Registry
	redis    *redis.Client

	closers []io.Closer
}

type envOpts struct {
	// tui sends logs to a file so they do not corrupt the screen.
	tui bool
	// noStore skips opening the database.
	noStore bool
	// noSets skips building the question set loader and registry.
	noSets bool
}

func newEnv(cmd *cobra.Command, opts envOpts) (*env, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	applyFlags(cmd, cfg)

	e := &env{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			e.Close()
		}
	}()

	dbPath, err := resolveDBPath(cfg)
	if err != nil {
		return nil, fmt.Errorf("resolve DB path: %w", err)
	}

	var logOut io.Writer = cmd.ErrOrStderr()
	if opts.tui {
		path := cfg.LogFile
		if path == "" {
			path = filepath.Join(filepath.Dir(dbPath), "examrun.log")
		}
		f, err := logger.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		e.closers = append(e.closers, f)
		logOut = f
	}
	e.log = logger.Setup(cfg.LogLevel, cfg.LogFormat, logOut)

	if !opts.noStore {
		st, err := store.Open(dbPath)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		e.store = st
		e.closers = append(e.closers, st)
		e.log.Debug().Str("path", dbPath).Msg("store opened")
	}

	if !opts.noSets {
		e.loader = questionset.NewCachedLoader(questionset.FileLoader{Dir: cfg.DataDir}, cfg.CacheTTL())
		e.registry = questionset.NewRegistry(e.loader, e.log, profiles(cfg))
	}

	ok = true
	return e, nil
}

// applyFlags gives command-line flags the last word over config and env.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetString("db"); v != "" {
		cfg.DBPath = v
	}
	if v, _ := cmd.Flags().GetString("data"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
}

// resolveDBPath returns the configured database path, falling back to the
// default XDG location.
func resolveDBPath(cfg *config.Config) (string, error) {
	if cfg.DBPath != "" {
		return cfg.DBPath, store.EnsureDir(cfg.DBPath)
	}
	return store.DefaultDBPath()
}

func profiles(cfg *config.Config) map[string]questionset.Profile {
	p := questionset.DefaultProfiles()
	if secs := cfg.Sets.ListeningSeconds; secs > 0 {
		listening := p["listening"]
		listening.QuestionSeconds = secs
		p["listening"] = listening
	}
	return p
}

// sessionConfig builds the controller configuration shared by run and
// simulate. The caller sets Sink.
func (e *env) sessionConfig(sessionID string) session.Config {
	return session.Config{
		Registry:              e.registry,
		Logger:                e.log,
		SessionID:             sessionID,
		AllowCountMismatch:    e.cfg.Session.AllowCountMismatch,
		StallTimeout:          e.cfg.StallTimeout(),
		ModuleDangerSeconds:   e.cfg.Session.ModuleDangerSeconds,
		QuestionDangerSeconds: e.cfg.Session.QuestionDangerSeconds,
	}
}

// proctorSink mirrors the display to Redis when a URL is configured. A Redis
// that cannot be reached is logged and skipped.
func (e *env) proctorSink(ctx context.Context, sessionID string) *display.RedisSink {
	if e.cfg.Redis.URL == "" {
		return nil
	}
	if e.redis == nil {
		client, err := display.DialRedis(ctx, e.cfg.Redis.URL, e.log)
		if err != nil {
			e.log.Warn().Err(err).Msg("proctor display disabled")
			return nil
		}
		e.redis = client
		e.closers = append(e.closers, client)
	}
	rs := display.NewRedisSink(e.redis, sessionID, e.cfg.RedisTTL(), e.log)
	e.closers = append(e.closers, closerFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return rs.Flush(ctx)
	}))
	return rs
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// sink combines local sinks with the proctor display, when there is one.
func (e *env) sink(ctx context.Context, sessionID string, local ...display.Sink) display.Sink {
	sinks := append([]display.Sink(nil), local...)
	if rs := e.proctorSink(ctx, sessionID); rs != nil {
		sinks = append(sinks, rs)
	}
	return display.Multi(sinks...)
}

// Close releases everything newEnv opened, last opened first.
func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		_ = e.closers[i].Close()
	}
	e.closers = nil
}
