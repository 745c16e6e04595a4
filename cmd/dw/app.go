package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/ehrlich-b/droidweekly/internal/config"
	"github.com/ehrlich-b/droidweekly/internal/feed"
	"github.com/ehrlich-b/droidweekly/internal/fetch"
	"github.com/ehrlich-b/droidweekly/internal/logger"
	"github.com/ehrlich-b/droidweekly/internal/reader"
	"github.com/ehrlich-b/droidweekly/internal/repository"
	"github.com/ehrlich-b/droidweekly/internal/store"
)

type globalOpts struct {
	configPath string
	logLevel   string
}

func (o *globalOpts) path() string {
	if o.configPath != "" {
		return o.configPath
	}
	return config.DefaultPath()
}

// app is everything a command needs, wired from config.
type app struct {
	cfgPath string
	cfg     *config.Config
	store   *store.Store
	client  *fetch.Client
	repo    *repository.Repository
	feed    *feed.Feed
	logs    io.Closer
	stop    func() bool
}

func openApp(ctx context.Context, o *globalOpts) (*app, error) {
	path := o.path()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if o.logLevel != "" {
		level = o.logLevel
	}
	logs, err := logger.Init(level, cfg.Logging.File)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	if err := config.EnsureConfigDirs(filepath.Dir(cfg.Database.Path)); err != nil {
		logs.Close()
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		logs.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	timeout := config.Duration(cfg.Site.Timeout, fetch.DefaultTimeout)
	client := fetch.New(fetch.Options{
		UserAgent: cfg.Site.UserAgent,
		Timeout:   timeout,
		Interval:  config.Duration(cfg.Site.Interval, 0),
	})

	repo := repository.New(st, client, cfg.Site.URL)
	a := &app{cfgPath: path, cfg: cfg, store: st, client: client, repo: repo, logs: logs}
	// an interrupt abandons pending article reads
	a.stop = context.AfterFunc(ctx, repo.Close)
	if cfg.Site.FeedURL != "" {
		a.feed = feed.New(cfg.Site.FeedURL, client.UserAgent(), client.HTTPClient(), timeout)
		repo.Feed = a.feed
	}
	if cfg.Reader.Enabled {
		a.enableReader()
	}
	return a, nil
}

func (a *app) enableReader() {
	if a.repo.Reader != nil {
		return
	}
	a.repo.Reader = reader.New(a.client)
	a.repo.ReaderConcurrency = a.cfg.Reader.Concurrency
}

func (a *app) Close() {
	a.repo.Wait()
	a.stop()
	a.store.Close()
	a.logs.Close()
}
