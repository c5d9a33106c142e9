package builtin

import (
	"context"
	"net/http"

	"github.com/kingrea/smart-mirror/internal/component"
)

const defaultMaxEvents = 12

// CalendarDay groups the events of one day.
type CalendarDay struct {
	Day    string          `json:"day"`
	Date   int             `json:"date"`
	Month  string          `json:"month"`
	Events []CalendarEntry `json:"events"`
}

// CalendarEntry is one simplified calendar event.
type CalendarEntry struct {
	Title        string `json:"title"`
	Time         string `json:"time"`
	Location     string `json:"location,omitempty"`
	IsAllDay     bool   `json:"isAllDay"`
	CalendarName string `json:"calendarName,omitempty"`
	ColorClass   string `json:"colorClass,omitempty"`
}

// TokenStore reports whether OAuth tokens are available for a calendar
// instance. Token persistence lives outside this service.
type TokenStore interface {
	HasTokens(ctx context.Context, settings component.Settings) (bool, error)
}

// CalendarSource fetches upcoming events from the calendar provider.
type CalendarSource interface {
	Upcoming(ctx context.Context, settings component.Settings, maxEvents int) ([]CalendarDay, error)
}

type calendar struct {
	tokens TokenStore
	source CalendarSource
}

func newCalendar(tokens TokenStore, source CalendarSource) *calendar {
	return &calendar{tokens: tokens, source: source}
}

func (c *calendar) handle(ctx context.Context, settings component.Settings, _ *http.Request) (any, error) {
	ok, err := c.tokens.HasTokens(ctx, settings)
	if err != nil {
		return nil, err
	}
	if !ok {
		return component.Fail(component.AuthRequiredMessage), nil
	}
	if settings.String("clientId") == "" || settings.String("clientSecret") == "" {
		return component.Fail("Google OAuth not configured"), nil
	}
	maxEvents := defaultMaxEvents
	if v, ok := settings["maxEvents"].(float64); ok && v > 0 {
		maxEvents = int(v)
	}
	days, err := c.source.Upcoming(ctx, settings, maxEvents)
	if err != nil {
		return nil, err
	}
	if days == nil {
		days = []CalendarDay{}
	}
	return days, nil
}

// settingTokens treats an accessToken setting as proof of authorisation.
type settingTokens struct{}

func (settingTokens) HasTokens(_ context.Context, settings component.Settings) (bool, error) {
	return settings.String("accessToken") != "", nil
}

type emptyCalendar struct{}

func (emptyCalendar) Upcoming(context.Context, component.Settings, int) ([]CalendarDay, error) {
	return []CalendarDay{}, nil
}
