package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"compliance_notifier/internal/app"
	idb "compliance_notifier/internal/infra/database"
)

// maxUpcomingRows keeps /upcoming replies under Telegram's message size limit.
const maxUpcomingRows = 30

// RegisterAdminHandlers registers handlers for admin commands.
// It requires the bot instance, admin service, and the configured admin Telegram ID.
func RegisterAdminHandlers(ctx context.Context, b *telebot.Bot, adminService *app.AdminService, adminTelegramID int64, cycleTimeout time.Duration, baseLogger *logrus.Entry) {
	b.Handle("/run_cycle", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/run_cycle",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		if c.Sender().ID != adminTelegramID {
			handlerLogger.Warn("Unauthorized access attempt")
			return c.Send("エラー: このコマンドを実行する権限がありません。")
		}

		args := c.Args()
		force := len(args) == 1 && strings.EqualFold(args[0], "force")
		if len(args) > 1 || (len(args) == 1 && !force) {
			return c.Send("形式が正しくありません。使い方: /run_cycle [force]")
		}

		runCtx, cancel := context.WithTimeout(ctx, cycleTimeout)
		defer cancel()
		summary, err := adminService.RunCycle(runCtx, c.Sender().ID, force)
		if err != nil {
			logWithError := handlerLogger.WithError(err)
			switch {
			case errors.Is(err, app.ErrAdminNotAuthorized):
				logWithError.Warn("Admin not authorized (service level)")
				return c.Send("エラー: このコマンドを実行する権限がありません。")
			case errors.Is(err, app.ErrCycleLocked):
				logWithError.Warn("Cycle already running")
				return c.Send("別の通知判定が実行中です。しばらくしてから再実行してください。")
			default:
				logWithError.Error("Evaluation cycle failed")
				return c.Send(fmt.Sprintf("通知判定でエラーが発生しました: %s\n送信 %d / 送信済み %d / 失敗 %d",
					err.Error(), summary.Sent, summary.AlreadySent, summary.Failed))
			}
		}

		handlerLogger.WithField("cycle_id", summary.CycleID).Info("Cycle run from admin bot")
		return c.Send(fmt.Sprintf("通知判定が完了しました (%s)\n対象 %d 件 / 送信 %d / 送信済み %d / 失敗 %d",
			summary.CycleID, summary.Subjects, summary.Sent, summary.AlreadySent, summary.Failed))
	})

	b.Handle("/upcoming", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/upcoming",
			"sender_id": c.Sender().ID,
		})
		if c.Sender().ID != adminTelegramID {
			handlerLogger.Warn("Unauthorized access attempt")
			return c.Send("エラー: このコマンドを実行する権限がありません。")
		}

		args := c.Args()
		if len(args) != 1 {
			return c.Send("形式が正しくありません。使い方: /upcoming <subject_id>")
		}
		handlerLogger = handlerLogger.WithField("subject_id", args[0])

		items, err := adminService.Upcoming(ctx, c.Sender().ID, args[0])
		if err != nil {
			if errors.Is(err, idb.ErrSubjectNotFound) {
				handlerLogger.Warn("Subject not found")
				return c.Send(fmt.Sprintf("ユーザー %s が見つかりません。", args[0]))
			}
			handlerLogger.WithError(err).Error("Failed to list upcoming deadlines")
			return c.Send(fmt.Sprintf("期限の取得中にエラーが発生しました: %s", err.Error()))
		}
		if len(items) == 0 {
			return c.Send("該当する制度はありません。")
		}

		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("%s の今後の期限:\n", args[0]))
		for i, it := range items {
			if i == maxUpcomingRows {
				sb.WriteString(fmt.Sprintf("…ほか %d 件", len(items)-maxUpcomingRows))
				break
			}
			mark := ""
			if it.Disabled {
				mark = " (通知OFF)"
			}
			if it.Resolved {
				sb.WriteString(fmt.Sprintf("- %s: %s (あと%d日)%s\n", it.Rule.Title, it.Date.Japanese(), it.DaysUntil, mark))
			} else {
				sb.WriteString(fmt.Sprintf("- %s: %s%s\n", it.Rule.Title, it.Rule.Recurrence.Lag, mark))
			}
		}
		return c.Send(sb.String())
	})

	b.Handle("/catalog", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/catalog",
			"sender_id": c.Sender().ID,
		})
		rules, err := adminService.Rules(c.Sender().ID)
		if err != nil {
			handlerLogger.Warn("Unauthorized access attempt")
			return c.Send("エラー: このコマンドを実行する権限がありません。")
		}

		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("登録制度 %d 件:\n", len(rules)))
		for _, r := range rules {
			sb.WriteString(fmt.Sprintf("- %s [%s] %s\n", r.ID, r.Category, r.Title))
		}
		return c.Send(sb.String())
	})
}
