// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func RegisterBotCommands(b *telebot.Bot, adminTelegramID int64, baseLogger *logrus.Entry) {
	startHelpLogger := baseLogger.WithField("handler_group", "start_help")

	b.Handle("/start", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/start").WithField("sender_id", senderID)
		logCtx.Info("Processing /start command")

		if senderID != adminTelegramID {
			logCtx.Info("User is unknown")
			return c.Send("このボットは運用担当者専用です。")
		}
		return c.Send("MERKI 通知エンジンの管理ボットです。/help でコマンド一覧を表示します。")
	})

	b.Handle("/help", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/help").WithField("sender_id", senderID)
		logCtx.Info("Processing /help command")

		if senderID != adminTelegramID {
			return c.Send("利用できるコマンドはありません。")
		}
		var helpText strings.Builder
		helpText.WriteString("管理コマンド:\n\n")
		helpText.WriteString("`/run_cycle [force]`\n - 通知判定を今すぐ実行します。force で時刻判定を無視します。\n\n")
		helpText.WriteString("`/upcoming <subject_id>`\n - 指定ユーザーの今後の期限を表示します。\n\n")
		helpText.WriteString("`/catalog`\n - 制度一覧を表示します。\n\n")
		helpText.WriteString("`/help`\n - このメッセージを表示します。")
		return c.Send(helpText.String(), &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
	})
}
