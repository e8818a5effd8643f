package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"mod-update-notifier/config"
	"mod-update-notifier/db"
	"mod-update-notifier/discord"
	"mod-update-notifier/dispatch"
	"mod-update-notifier/events"
	"mod-update-notifier/logger"
	"mod-update-notifier/metrics"
	"mod-update-notifier/portal"
	"mod-update-notifier/scheduler"
	"mod-update-notifier/updater"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// stores is what the offline commands need: config, logging and the database.
type stores struct {
	cfg         config.Config
	db          *gorm.DB
	mods        *db.ModStore
	communities *db.CommunityStore
}

func (s *stores) Close() {
	if sqlDB, err := s.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// app is a fully wired notifier.
type app struct {
	*stores
	metrics   *metrics.Metrics
	publisher events.Publisher
	engine    *updater.Engine
	scheduler *scheduler.Scheduler
}

func (a *app) Close() {
	if err := a.publisher.Close(); err != nil {
		logger.Log.Warnw("Failed to close event publisher", zap.Error(err))
	}
	a.stores.Close()
}

// openStores loads config, starts logging and opens the database.
func openStores(path string, console bool) *stores {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		logger.Log.Fatalw("Failed to load configuration", zap.Error(err))
	}
	if err := logger.InitLogger(cfg.LogFile, console); err != nil {
		logger.Log.Fatalw("Failed to initialize logger", zap.Error(err))
	}

	gdb, err := db.InitDatabase(cfg.DatabasePath)
	if err != nil {
		logger.Log.Fatalw("Failed to initialize database", zap.String("path", cfg.DatabasePath), zap.Error(err))
	}
	logger.Log.Infow("Database initialized", zap.String("path", cfg.DatabasePath))

	return &stores{
		cfg:         cfg,
		db:          gdb,
		mods:        db.NewModStore(gdb),
		communities: db.NewCommunityStore(gdb),
	}
}

// bootstrap wires every collaborator of the update cycle.
func bootstrap(path string, console bool) *app {
	s := openStores(path, console)
	cfg := s.cfg

	portalClient, err := portal.NewClient(cfg)
	if err != nil {
		logger.Log.Fatalw("Failed to create portal client", zap.Error(err))
	}
	discordClient, err := discord.NewClient(cfg)
	if err != nil {
		logger.Log.Fatalw("Failed to create Discord client", zap.Error(err))
	}
	publisher, err := events.New(cfg.NATSURL)
	if err != nil {
		logger.Log.Fatalw("Failed to connect event publisher", zap.String("url", cfg.NATSURL), zap.Error(err))
	}

	m := metrics.New()
	budget := dispatch.NewBudget(cfg.SendRate, cfg.SendBurst, cfg.TargetRate)
	formatter := dispatch.Formatter{Links: portalClient, ChangelogLines: cfg.ChangelogLines}
	dispatcher := dispatch.New(discordClient, budget, formatter, dispatch.OptionsFromConfig(cfg), m,
		logger.Log.Named("dispatch"))

	engine := updater.NewEngine(portalClient, s.mods, s.communities, dispatcher, publisher, m,
		updater.Options{DiffWorkers: cfg.DiffWorkers, SuppressInitial: cfg.SuppressInitial},
		logger.Log.Named("updater"))

	sched := scheduler.New(func(ctx context.Context) error {
		_, err := engine.RunCycle(ctx)
		return err
	}, scheduler.Options{
		Interval:   cfg.PollInterval,
		Timeout:    cfg.CycleTimeout,
		Grace:      cfg.SendTimeout,
		RunOnStart: cfg.RunOnStart,
	}, m, logger.Log.Named("scheduler"))

	return &app{
		stores:    s,
		metrics:   m,
		publisher: publisher,
		engine:    engine,
		scheduler: sched,
	}
}

// parseID parses a chat platform snowflake.
func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// parseOptionalID is parseID where "none" clears the value.
func parseOptionalID(s string) (*int64, error) {
	if strings.EqualFold(strings.TrimSpace(s), "none") {
		return nil, nil
	}
	id, err := parseID(s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

var errToggle = errors.New(`expected "on" or "off"`)

func parseToggle(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "yes":
		return true, nil
	case "off", "false", "no":
		return false, nil
	}
	return false, fmt.Errorf("%q: %w", s, errToggle)
}
