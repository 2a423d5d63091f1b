package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"

	"compliance_notifier/internal/app"
	"compliance_notifier/internal/catalog"
	"compliance_notifier/internal/domain/calendar"
	"compliance_notifier/internal/domain/notification"
	"compliance_notifier/internal/domain/subject"
	"compliance_notifier/internal/infra/config"
	idb "compliance_notifier/internal/infra/database"
	"compliance_notifier/internal/infra/logger"
	"compliance_notifier/internal/infra/mail"
)

// deps is the assembled application.
type deps struct {
	cfg          *config.AppConfig
	log          *logrus.Logger
	zone         calendar.Zone
	catalog      *catalog.Catalog
	db           *sql.DB
	notifService *app.NotificationServiceImpl
}

func (d *deps) Close() {
	if d.db != nil {
		d.db.Close()
	}
}

func loadCatalog(cfg *config.AppConfig, policy app.Policy) (*catalog.Catalog, error) {
	required := policy.AllLeadDays()
	if cfg.CatalogFile != "" {
		return catalog.LoadFile(cfg.CatalogFile, required)
	}
	return catalog.Default(required)
}

func bootstrap(ctx context.Context) (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("could not load application configuration: %w", err)
	}
	log := logger.New(cfg)
	log.WithFields(logrus.Fields{
		"log_level":   cfg.LogLevel,
		"environment": cfg.Environment,
		"db_driver":   cfg.DatabaseDriver,
	}).Info("Configuration loaded")

	policy := app.DefaultPolicy()
	cat, err := loadCatalog(cfg, policy)
	if err != nil {
		log.WithError(err).Fatal("Invalid rule catalog")
	}
	log.WithField("rules", cat.Len()).Info("Rule catalog loaded")

	d := &deps{
		cfg:     cfg,
		log:     log,
		zone:    calendar.FixedZone("OPERATING", cfg.OperatingZoneOffset),
		catalog: cat,
	}

	var (
		profiles subject.Repository
		records  notification.Repository
		lock     notification.CycleLock
	)
	switch cfg.DatabaseDriver {
	case "sqlite":
		d.db, err = idb.NewSQLiteConnection(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("could not open sqlite database: %w", err)
		}
		store := idb.NewSQLiteStore(d.db)
		profiles, records, lock = store, store, store
	default:
		d.db, err = idb.NewPostgresConnection(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("could not connect to database: %w", err)
		}
		if err := idb.MigratePostgres(ctx, d.db); err != nil {
			d.Close()
			return nil, err
		}
		profiles = idb.NewPostgresSubjectRepository(d.db)
		records = idb.NewPostgresNotificationRepository(d.db)
		lock = idb.NewPostgresCycleLock(d.db)
	}
	log.Info("Database connection established successfully.")

	var sender notification.Sender
	if cfg.MailConfigured() {
		sender = mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
			FromName: cfg.MailFromName,
		}, logger.Component(log, "mail"))
	} else {
		log.Warn("SMTP_HOST is not set; reminders will only be logged")
		sender = mail.NewLogSender(logger.Component(log, "mail"))
	}

	renderer := app.NewRenderer(cat, cfg.DashboardURL)
	dispatcher := app.NewDispatcher(records, sender, renderer, logger.Component(log, "dispatcher"), cfg.SendTimeout, cfg.StoreTimeout)
	d.notifService = app.NewNotificationServiceImpl(
		cat, profiles, records, lock, policy, dispatcher, renderer,
		app.ServiceConfig{
			Zone:                  d.zone,
			Workers:               cfg.WorkerCount,
			StoreFailureThreshold: cfg.StoreFailureThreshold,
			ProfileTimeout:        cfg.StoreTimeout,
		},
		logger.Component(log, "notification_service"),
	)
	return d, nil
}
