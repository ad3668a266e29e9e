package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/consult-booking/internal/config"
	"github.com/tbourn/consult-booking/internal/integrations/calendly"
	"github.com/tbourn/consult-booking/internal/integrations/paystack"
	"github.com/tbourn/consult-booking/internal/notify"
	"github.com/tbourn/consult-booking/internal/repo"
	"github.com/tbourn/consult-booking/internal/services"
)

// app is the wiring shared by serve and sweep.
type app struct {
	db       *gorm.DB
	services *services.Set
	closers  []func() error
}

func openDB(cfg config.Config) (*gorm.DB, error) {
	dsn := cfg.Database.Path
	if cfg.Database.Driver == "postgres" {
		dsn = cfg.Database.URL
	}
	db, err := repo.Open(cfg.Database.Driver, dsn, cfg.Database.MaxOpenConns)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Database.Driver, err)
	}
	return db, nil
}

func newApp(cfg config.Config) (*app, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{db: db}
	if sqlDB, err := db.DB(); err == nil {
		a.closers = append(a.closers, sqlDB.Close)
	}

	notifier, closeNotifier, err := notify.New(cfg.Notify)
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, closeNotifier)

	a.services = services.NewSet(cfg, services.Deps{
		DB:       db,
		Gateway:  paystack.NewClient(cfg.Paystack.BaseURL, cfg.Paystack.SecretKey, cfg.Paystack.Timeout),
		Events:   calendly.NewClient(cfg.Calendly.BaseURL, cfg.Calendly.APIToken, cfg.Calendly.Timeout),
		Notifier: notifier,
	})
	return a, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("close")
		}
	}
}
