package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kingrea/smart-mirror/internal/component"
)

// Event is a yearly recurring window, start and end given as MM-DD.
type Event struct {
	Start          string `json:"start"`
	End            string `json:"end"`
	EventSlug      string `json:"eventSlug,omitempty"`
	EventText      string `json:"eventText,omitempty"`
	CustomGreeting string `json:"customGreeting,omitempty"`
	QRCodeLink     string `json:"qrCodeLink,omitempty"`
	// QRCode is rendered from QRCodeLink for the active event only.
	QRCode string `json:"qrCode,omitempty"`
}

// ActiveEvent is an Event resolved against the current date.
type ActiveEvent struct {
	Event
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
}

type eventsResult struct {
	CurrentEvent *ActiveEvent `json:"currentEvent"`
	Greeting     *string      `json:"greeting"`
}

type events struct {
	now func() time.Time
}

func newEvents(now func() time.Time) *events {
	if now == nil {
		now = time.Now
	}
	return &events{now: now}
}

func (e *events) handle(_ context.Context, settings component.Settings, req *http.Request) (any, error) {
	raw := settings["events"]
	if req != nil && req.URL.Query().Get("all") == "true" {
		// The settings editor round-trips this list, so keys are kept as stored.
		if raw == nil {
			raw = []any{}
		}
		return map[string]any{"events": raw}, nil
	}
	list, err := decodeEvents(raw)
	if err != nil {
		return component.Fail("Failed to process events"), nil
	}
	now := e.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	for _, ev := range list {
		start, end, err := eventWindow(ev, now)
		if err != nil {
			continue
		}
		if !today.Before(start) && !today.After(end) {
			if ev.QRCodeLink != "" {
				if qr, err := qrDataURL(ev.QRCodeLink); err == nil {
					ev.QRCode = qr
				}
			}
			active := &ActiveEvent{Event: ev, StartDate: start, EndDate: end}
			var greeting *string
			if ev.CustomGreeting != "" {
				g := ev.CustomGreeting
				greeting = &g
			}
			return eventsResult{CurrentEvent: active, Greeting: greeting}, nil
		}
	}
	return eventsResult{}, nil
}

func decodeEvents(raw any) ([]Event, error) {
	if raw == nil {
		return []Event{}, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var list []Event
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	if list == nil {
		list = []Event{}
	}
	return list, nil
}

// eventWindow places ev around now. Windows that wrap the new year end in
// the following year (or started in the previous one); windows already over
// move to next year.
func eventWindow(ev Event, now time.Time) (time.Time, time.Time, error) {
	year := now.Year()
	loc := now.Location()
	start, err := monthDay(ev.Start, year, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := monthDay(ev.End, year, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end = end.Add(24*time.Hour - time.Second)
	wraps := end.Before(start)
	if wraps {
		end = end.AddDate(1, 0, 0)
		if now.Before(start) {
			prevEnd := end.AddDate(-1, 0, 0)
			if !prevEnd.Before(now) {
				return start.AddDate(-1, 0, 0), prevEnd, nil
			}
		}
	}
	if end.Before(now) {
		start = start.AddDate(1, 0, 0)
		end = end.AddDate(1, 0, 0)
	}
	return start, end, nil
}

func monthDay(value string, year int, loc *time.Location) (time.Time, error) {
	parsed, err := time.Parse("01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("events: invalid date %q: %w", value, err)
	}
	return time.Date(year, parsed.Month(), parsed.Day(), 0, 0, 0, 0, loc), nil
}
