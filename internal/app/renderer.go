package app

import (
	"fmt"
	"strings"

	"compliance_notifier/internal/catalog"
	"compliance_notifier/internal/domain/calendar"
	"compliance_notifier/internal/domain/obligation"
	"compliance_notifier/internal/domain/subject"
)

// Message is a rendered reminder.
type Message struct {
	Subject string
	Body    string
}

// Renderer composes reminder mail from catalog templates.
type Renderer struct {
	catalog      *catalog.Catalog
	dashboardURL string
}

func NewRenderer(c *catalog.Catalog, dashboardURL string) *Renderer {
	return &Renderer{catalog: c, dashboardURL: dashboardURL}
}

// Render builds the reminder for rule due on deadline, leadDays ahead.
// A subject's custom note for (rule, leadDays) replaces the default note.
func (r *Renderer) Render(profile *subject.Profile, rule obligation.Rule, deadline calendar.Date, leadDays int) (Message, error) {
	tpl, ok := r.catalog.Template(leadDays)
	if !ok {
		return Message{}, fmt.Errorf("no template for lead day %d", leadDays)
	}

	note := tpl.Note
	if custom, ok := profile.CustomNotes.Note(rule.ID, leadDays); ok {
		note = custom
	}

	var b strings.Builder
	b.WriteString(catalog.PlaceholderCompanyName)
	b.WriteString("\n\nMERKIからのご連絡です。\n\n")
	b.WriteString(tpl.Intro)
	b.WriteString("\n\n■ 制度名：")
	b.WriteString(catalog.PlaceholderRegulationName)
	b.WriteString("\n■ 期限日：")
	b.WriteString(catalog.PlaceholderDeadlineDate)
	b.WriteString("\n\n")
	if note != "" {
		b.WriteString(note)
		b.WriteString("\n\n")
	}
	if r.dashboardURL != "" {
		b.WriteString("▼ ダッシュボードはこちら\n")
		b.WriteString(r.dashboardURL)
		b.WriteString("\n\n")
	}
	b.WriteString("――\nMERKI\n")

	// One pass: substituted values are never scanned again for placeholders.
	replacer := strings.NewReplacer(
		catalog.PlaceholderCompanyName, profile.RecipientName(),
		catalog.PlaceholderRegulationName, rule.Title,
		catalog.PlaceholderDeadlineDate, deadline.Japanese(),
	)
	return Message{
		Subject: replacer.Replace(tpl.Subject),
		Body:    replacer.Replace(b.String()),
	}, nil
}
