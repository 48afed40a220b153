// Package render turns outbox notification rows into localized push copy.
package render

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	engagements "github.com/tryst-app/tryst/internal/services/engagements/domain"
)

var supportedTags = []language.Tag{
	language.English,
	language.MustParse("pt-BR"),
}

var tagMatcher = language.NewMatcher(supportedTags)

// Default returns the default notification language.
func Default() language.Tag {
	return language.English
}

// ResolveTag maps a configured locale string to a supported tag, falling back
// to the default for unknown or empty values.
func ResolveTag(locale string) language.Tag {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return Default()
	}
	parsed, err := language.Parse(locale)
	if err != nil {
		return Default()
	}
	matched, _, confidence := tagMatcher.Match(parsed)
	if confidence == language.No {
		return Default()
	}
	return matched
}

// Renderer phrases notification copy in one language.
type Renderer struct {
	printer *message.Printer
}

// New returns a renderer for the supplied tag.
func New(tag language.Tag) *Renderer {
	return &Renderer{printer: message.NewPrinter(tag)}
}

// Render produces title and body copy for one notification kind. The payload
// is the JSON object enqueued with the outbox row; missing fields degrade to
// generic copy rather than failing delivery.
func (r *Renderer) Render(kind engagements.NotificationKind, payloadJSON string) (title string, body string, err error) {
	payload := map[string]string{}
	if strings.TrimSpace(payloadJSON) != "" {
		if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
			return "", "", fmt.Errorf("decode notification payload: %w", err)
		}
	}

	switch kind {
	case engagements.KindScheduleSet:
		title, body = r.renderScheduleSet(payload)
		return title, body, nil
	case engagements.KindDeclined:
		return r.printer.Sprintf("notify.declined.title"), r.printer.Sprintf("notify.declined.body"), nil
	case engagements.KindWithdrawn:
		return r.printer.Sprintf("notify.withdrawn.title"), r.printer.Sprintf("notify.withdrawn.body"), nil
	case engagements.KindCancelled:
		return r.printer.Sprintf("notify.cancelled.title"), r.printer.Sprintf("notify.cancelled.body"), nil
	case engagements.KindCompleted:
		body = r.printer.Sprintf("notify.completed.body")
		if payload["code_confirmed"] == "true" {
			body = r.printer.Sprintf("notify.completed.body_confirmed")
		}
		return r.printer.Sprintf("notify.completed.title"), body, nil
	default:
		return "", "", fmt.Errorf("unknown notification kind %q", kind)
	}
}

func (r *Renderer) renderScheduleSet(payload map[string]string) (string, string) {
	activity := payload["activity"]
	venue := payload["venue"]
	day := payload["day"]
	timeOfDay := payload["time"]

	title := r.printer.Sprintf("notify.schedule_set.title")
	if activity == "" || venue == "" || day == "" || timeOfDay == "" {
		return title, r.printer.Sprintf("notify.schedule_set.body_generic")
	}
	return title, r.printer.Sprintf("notify.schedule_set.body", activity, venue, day, timeOfDay)
}
