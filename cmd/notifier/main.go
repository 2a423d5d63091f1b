package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/telebot.v3"

	"compliance_notifier/internal/app"
	"compliance_notifier/internal/infra/httpapi"
	"compliance_notifier/internal/infra/logger"
	"compliance_notifier/internal/infra/scheduler"
	"compliance_notifier/internal/infra/telegram"
)

// cycleTimeout bounds one evaluation cycle started by cron, the bot or the CLI.
const cycleTimeout = 30 * time.Minute

var rootCmd = &cobra.Command{
	Use:           "notifier",
	Short:         "Compliance deadline reminder engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.AddCommand(serveCmd(), runCmd(), catalogCmd(), upcomingCmd(), testNotificationCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "FATAL:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, HTTP API and optional admin bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			d, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer d.Close()
			log := d.log

			notifScheduler := scheduler.NewNotificationScheduler(
				d.notifService,
				logger.Component(log, "scheduler"),
				d.zone,
				d.cfg.CronSpecEvaluation,
				cycleTimeout,
				d.cfg.IgnoreNotificationHr,
			)

			var bot *telebot.Bot
			if d.cfg.TelegramToken != "" {
				bot, err = telebot.NewBot(telebot.Settings{
					Token:  d.cfg.TelegramToken,
					Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
					OnError: func(err error, c telebot.Context) { // Global error handler
						log.WithError(err).Error("telebot error")
					},
				})
				if err != nil {
					return fmt.Errorf("could not create Telegram bot: %w", err)
				}
				botLogger := logger.Component(log, "telegram")
				adminService := app.NewAdminService(d.notifService, d.catalog, d.cfg.AdminTelegramID)
				telegram.RegisterBotCommands(bot, d.cfg.AdminTelegramID, botLogger)
				telegram.RegisterAdminHandlers(ctx, bot, adminService, d.cfg.AdminTelegramID, cycleTimeout, botLogger)
				notifScheduler.SetAlerter(telegram.NewTelebotAdapter(bot, d.cfg.AdminTelegramID))
				log.Info("Admin command handlers registered.")
			}

			if err := notifScheduler.Start(); err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              d.cfg.HTTPAddr,
				Handler:           httpapi.NewHandler(d.notifService, d.catalog, d.cfg.AdminAPIToken, logger.Component(log, "http")).Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				log.WithField("addr", srv.Addr).Info("HTTP API listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.WithError(err).Error("HTTP server failed")
					stop()
				}
			}()
			if bot != nil {
				go bot.Start()
			}

			log.Info("Application setup complete.")
			<-ctx.Done()

			log.Info("Shutting down application...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
			if bot != nil {
				bot.Stop()
			}
			notifScheduler.Stop()
			log.Info("Application shut down gracefully.")
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	var (
		at             string
		ignoreHourGate bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one evaluation cycle and print the summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			when := time.Now()
			if at != "" {
				if when, err = time.Parse(time.RFC3339, at); err != nil {
					return fmt.Errorf("--at must be RFC3339: %w", err)
				}
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), cycleTimeout)
			defer cancel()
			summary, err := d.notifService.RunEvaluationCycle(ctx, when, app.CycleOptions{
				IgnoreHourGate: ignoreHourGate || d.cfg.IgnoreNotificationHr,
			})
			fmt.Fprintf(cmd.OutOrStdout(), "cycle %s: subjects=%d sent=%d already_sent=%d failed=%d skipped=%d aborted=%t\n",
				summary.CycleID, summary.Subjects, summary.Sent, summary.AlreadySent, summary.Failed, summary.Skipped, summary.Aborted)
			return err
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "evaluate as of this RFC3339 instant (default now)")
	cmd.Flags().BoolVar(&ignoreHourGate, "ignore-hour-gate", false, "fire due reminders regardless of the hour")
	return cmd
}

func catalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Validate and list the rule catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.AppendHeader(table.Row{"ID", "Category", "Title", "Recurrence", "Subject Type", "Tags"})
			for _, r := range d.catalog.ListAll() {
				tw.AppendRow(table.Row{r.ID, r.Category, r.Title, r.Recurrence.String(), r.SubjectType, fmt.Sprint(r.Tags)})
			}
			tw.Render()
			return nil
		},
	}
}

func upcomingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upcoming <subject-id>",
		Short: "List a subject's applicable deadlines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			items, err := d.notifService.Upcoming(cmd.Context(), args[0], time.Now())
			if err != nil {
				return err
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.AppendHeader(table.Row{"Rule", "Title", "Deadline", "Days", "Notify"})
			for _, it := range items {
				deadline, days := it.Rule.Recurrence.Lag, "-"
				if it.Resolved {
					deadline, days = it.Date.String(), strconv.Itoa(it.DaysUntil)
				}
				notify := "on"
				if it.Disabled {
					notify = "off"
				}
				tw.AppendRow(table.Row{it.Rule.ID, it.Rule.Title, deadline, days, notify})
			}
			tw.Render()
			return nil
		},
	}
}

func testNotificationCmd() *cobra.Command {
	var leadDays int
	cmd := &cobra.Command{
		Use:   "test-notification <subject-id>",
		Short: "Send a sample reminder to a subject without recording it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()
			if err := d.notifService.SendTestNotification(cmd.Context(), args[0], leadDays, time.Now()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "test notification (%d days) sent to %s\n", leadDays, args[0])
			return nil
		},
	}
	cmd.Flags().IntVar(&leadDays, "lead-days", app.LeadDays30, "template to use (30, 7 or 1)")
	return cmd
}
