// internal/infra/telegram/client.go
package telegram

import (
	"gopkg.in/telebot.v3"
)

// TelebotAdapter pushes operator alerts to the admin chat.
type TelebotAdapter struct {
	bot         *telebot.Bot
	adminChatID int64
}

func NewTelebotAdapter(b *telebot.Bot, adminChatID int64) *TelebotAdapter {
	return &TelebotAdapter{bot: b, adminChatID: adminChatID}
}

// Alert sends text to the admin.
func (tba *TelebotAdapter) Alert(text string) error {
	recipient := &telebot.User{ID: tba.adminChatID}
	_, err := tba.bot.Send(recipient, text, &telebot.SendOptions{DisableWebPagePreview: true})
	return err
}
