package builtin

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image/png"
	"io/fs"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shirou/gopsutil/v4/sensors"

	"github.com/kingrea/smart-mirror/internal/component"
)

func TestEmbeddedManifestsAreValid(t *testing.T) {
	entries, err := fs.ReadDir(FS(), ".")
	if err != nil {
		t.Fatalf("read embedded components: %v", err)
	}
	ids := map[string]bool{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		manifest, err := component.LoadManifest(FS(), entry.Name())
		if err != nil {
			t.Fatalf("manifest %s: %v", entry.Name(), err)
		}
		if manifest.ID != entry.Name() {
			t.Fatalf("manifest id %q does not match directory %q", manifest.ID, entry.Name())
		}
		ids[manifest.ID] = true
	}
	for _, want := range []string{"clock", "greetings", "system-stats", "wifi-qr-code", "events", "calendar"} {
		if !ids[want] {
			t.Fatalf("expected built-in %q, got %v", want, ids)
		}
	}
	for id := range Handlers() {
		if !ids[id] {
			t.Fatalf("handler %q has no embedded manifest", id)
		}
	}
}

func TestCalendarManifestNamesProviderRequirement(t *testing.T) {
	manifest, err := component.LoadManifest(FS(), "calendar")
	if err != nil {
		t.Fatalf("manifest calendar: %v", err)
	}
	if !strings.Contains(manifest.Description, "provider") {
		t.Fatalf("calendar description should say a provider is required, got %q", manifest.Description)
	}
}

func TestResolverReturnsNilForPresentationalComponents(t *testing.T) {
	r := NewResolver()
	h, err := r.Resolve(FS(), "clock", "clock")
	if err != nil {
		t.Fatalf("resolve clock: %v", err)
	}
	if h != nil {
		t.Fatalf("expected clock to have no handler")
	}
	h, err = r.Resolve(FS(), "wifi-qr-code", "wifi-qr-code")
	if err != nil || h == nil {
		t.Fatalf("expected wifi handler, got %v / %v", h, err)
	}
}

func TestWifiQRCodePayload(t *testing.T) {
	got, err := wifiQRCode(context.Background(), component.Settings{
		"networkName":  "Home;Net",
		"password":     "p:w",
		"securityType": "WPA",
	}, nil)
	if err != nil {
		t.Fatalf("wifi: %v", err)
	}
	res := got.(map[string]any)
	if payload := res["payload"]; payload != `WIFI:T:WPA;S:Home\;Net;P:p\:w;;` {
		t.Fatalf("unexpected payload %q", payload)
	}
	if res["networkName"] != "Home;Net" {
		t.Fatalf("unexpected network name %v", res["networkName"])
	}
	decodeQR(t, res["qrCode"].(string))

	got, _ = wifiQRCode(context.Background(), component.Settings{"networkName": "Guest", "password": "x", "securityType": "nopass"}, nil)
	if payload := got.(map[string]any)["payload"]; payload != "WIFI:T:nopass;S:Guest;;" {
		t.Fatalf("unexpected open payload %q", payload)
	}
}

// decodeQR checks value is a PNG data URL of the rendered size with a
// transparent quiet zone.
func decodeQR(t *testing.T, value string) {
	t.Helper()
	const prefix = "data:image/png;base64,"
	if !strings.HasPrefix(value, prefix) {
		t.Fatalf("expected png data url, got %.40q", value)
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, prefix))
	if err != nil {
		t.Fatalf("decode base64: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if b := img.Bounds(); b.Dx() != qrSize || b.Dy() != qrSize {
		t.Fatalf("expected %dx%d image, got %v", qrSize, qrSize, b)
	}
	if _, _, _, a := img.At(0, 0).RGBA(); a != 0 {
		t.Fatalf("expected transparent background, alpha %d", a)
	}
}

func TestWifiQRCodeRequiresNetwork(t *testing.T) {
	got, err := wifiQRCode(context.Background(), component.Settings{}, nil)
	if err != nil {
		t.Fatalf("wifi: %v", err)
	}
	msg, ok := component.FailureMessage(got)
	if !ok || msg != "WiFi network name not configured" {
		t.Fatalf("expected failure, got %#v", got)
	}
}

func fixedClock(year int, month time.Month, day int) func() time.Time {
	return func() time.Time { return time.Date(year, month, day, 12, 0, 0, 0, time.UTC) }
}

func TestEventsFindsActiveWindow(t *testing.T) {
	settings := component.Settings{"events": []any{
		map[string]any{"start": "10-25", "end": "10-31", "eventSlug": "halloween", "customGreeting": "Boo"},
		map[string]any{"start": "12-20", "end": "01-05", "eventSlug": "holidays"},
	}}

	h := newEvents(fixedClock(2026, time.October, 28))
	got, err := h.handle(context.Background(), settings, nil)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	res := got.(eventsResult)
	if res.CurrentEvent == nil || res.CurrentEvent.EventSlug != "halloween" {
		t.Fatalf("expected halloween, got %#v", res.CurrentEvent)
	}
	if res.Greeting == nil || *res.Greeting != "Boo" {
		t.Fatalf("expected greeting Boo, got %v", res.Greeting)
	}

	for _, day := range []func() time.Time{fixedClock(2026, time.December, 24), fixedClock(2027, time.January, 2)} {
		h := newEvents(day)
		got, _ := h.handle(context.Background(), settings, nil)
		res := got.(eventsResult)
		if res.CurrentEvent == nil || res.CurrentEvent.EventSlug != "holidays" {
			t.Fatalf("expected holidays on %v, got %#v", day(), res.CurrentEvent)
		}
		if res.Greeting != nil {
			t.Fatalf("expected no greeting, got %q", *res.Greeting)
		}
	}

	h = newEvents(fixedClock(2026, time.March, 3))
	got, _ = h.handle(context.Background(), settings, nil)
	if res := got.(eventsResult); res.CurrentEvent != nil {
		t.Fatalf("expected no active event, got %#v", res.CurrentEvent)
	}
}

func TestEventsAllReturnsStoredList(t *testing.T) {
	h := newEvents(fixedClock(2026, time.March, 3))
	stored := []any{map[string]any{
		"start":      "10-01",
		"end":        "10-31",
		"eventSlug":  "halloween",
		"qrCodeLink": "https://example.com/costumes",
		"eventImage": "halloween.png",
	}}
	req := httptest.NewRequest("GET", "/api/components/events?all=true", nil)
	got, err := h.handle(context.Background(), component.Settings{"events": stored}, req)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if diff := cmp.Diff(map[string]any{"events": stored}, got); diff != "" {
		t.Fatalf("stored events changed (-want +got):\n%s", diff)
	}

	got, _ = h.handle(context.Background(), component.Settings{}, req)
	if diff := cmp.Diff(map[string]any{"events": []any{}}, got); diff != "" {
		t.Fatalf("empty list mismatch (-want +got):\n%s", diff)
	}
}

func TestEventsInvalidSettings(t *testing.T) {
	h := newEvents(fixedClock(2026, time.March, 3))
	got, _ := h.handle(context.Background(), component.Settings{"events": "nope"}, nil)
	if msg, ok := component.FailureMessage(got); !ok || msg != "Failed to process events" {
		t.Fatalf("expected failure, got %#v", got)
	}
}

func TestEventsRendersQRCodeForActiveEvent(t *testing.T) {
	settings := component.Settings{"events": []any{
		map[string]any{"start": "10-25", "end": "10-31", "eventSlug": "halloween", "qrCodeLink": "https://example.com/party"},
	}}
	got, err := newEvents(fixedClock(2026, time.October, 28)).handle(context.Background(), settings, nil)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	res := got.(eventsResult)
	if res.CurrentEvent == nil {
		t.Fatalf("expected an active event")
	}
	if res.CurrentEvent.QRCodeLink != "https://example.com/party" {
		t.Fatalf("qrCodeLink lost: %#v", res.CurrentEvent)
	}
	decodeQR(t, res.CurrentEvent.QRCode)
}

type staticCalendar struct{ days []CalendarDay }

func (s staticCalendar) Upcoming(context.Context, component.Settings, int) ([]CalendarDay, error) {
	return s.days, nil
}

type brokenTokens struct{}

func (brokenTokens) HasTokens(context.Context, component.Settings) (bool, error) {
	return false, errors.New("token store offline")
}

func TestCalendarRequiresAuthentication(t *testing.T) {
	h := newCalendar(settingTokens{}, emptyCalendar{})
	got, err := h.handle(context.Background(), component.Settings{"clientId": "id", "clientSecret": "secret"}, nil)
	if err != nil {
		t.Fatalf("calendar: %v", err)
	}
	if msg, ok := component.FailureMessage(got); !ok || msg != component.AuthRequiredMessage {
		t.Fatalf("expected auth failure, got %#v", got)
	}

	got, _ = h.handle(context.Background(), component.Settings{"accessToken": "tok"}, nil)
	if msg, ok := component.FailureMessage(got); !ok || msg != "Google OAuth not configured" {
		t.Fatalf("expected oauth failure, got %#v", got)
	}

	if _, err := newCalendar(brokenTokens{}, emptyCalendar{}).handle(context.Background(), component.Settings{}, nil); err == nil {
		t.Fatalf("expected token store error")
	}
}

func TestCalendarDelegatesToSource(t *testing.T) {
	days := []CalendarDay{{Day: "Mon", Date: 5, Month: "Oct", Events: []CalendarEntry{{Title: "Standup", Time: "09:00"}}}}
	h := newCalendar(settingTokens{}, staticCalendar{days: days})
	got, err := h.handle(context.Background(), component.Settings{"accessToken": "tok", "clientId": "id", "clientSecret": "secret"}, nil)
	if err != nil {
		t.Fatalf("calendar: %v", err)
	}
	if list := got.([]CalendarDay); len(list) != 1 || list[0].Events[0].Title != "Standup" {
		t.Fatalf("unexpected days %#v", list)
	}
}

type fakeHost struct {
	cpu, memory, disk, temp, load float64
	err                           error
	diskPath                      string
}

func (f *fakeHost) CPUPercent(context.Context) (float64, error)    { return f.cpu, f.err }
func (f *fakeHost) MemoryPercent(context.Context) (float64, error) { return f.memory, f.err }
func (f *fakeHost) Temperature(context.Context) (float64, error)   { return f.temp, f.err }
func (f *fakeHost) Load1(context.Context) (float64, error)         { return f.load, f.err }

func (f *fakeHost) DiskPercent(_ context.Context, path string) (float64, error) {
	f.diskPath = path
	return f.disk, f.err
}

func TestSystemStatsRoundsReadings(t *testing.T) {
	host := &fakeHost{cpu: 49.6, memory: 75, disk: 112, temp: 48.5, load: 2.004}
	s := newSystemStats(host)
	got, err := s.handle(context.Background(), component.Settings{"diskPath": "/data"}, nil)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := SystemStats{CPU: 50, Memory: 75, Disk: 100, TempC: 49, Load1: 2}
	if stats := got.(SystemStats); stats != want {
		t.Fatalf("expected %+v, got %+v", want, stats)
	}
	if host.diskPath != "/data" {
		t.Fatalf("expected disk path /data, got %q", host.diskPath)
	}

	if _, err := s.handle(context.Background(), component.Settings{}, nil); err != nil {
		t.Fatalf("stats: %v", err)
	}
	if host.diskPath != "/" {
		t.Fatalf("expected default disk path /, got %q", host.diskPath)
	}
}

func TestSystemStatsUnreadableValuesAreZero(t *testing.T) {
	s := newSystemStats(&fakeHost{cpu: 12, memory: 40, disk: 9, temp: 50, load: 1, err: errors.New("nope")})
	got, err := s.handle(context.Background(), component.Settings{}, nil)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats := got.(SystemStats); stats != (SystemStats{}) {
		t.Fatalf("expected zero stats, got %+v", stats)
	}
}

func TestHostSourceReadsRelocatedProc(t *testing.T) {
	proc := t.TempDir()
	write := func(name, body string) {
		if err := os.WriteFile(filepath.Join(proc, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write("meminfo", "MemTotal:       1000 kB\nMemFree:         100 kB\nMemAvailable:    250 kB\n")
	write("loadavg", "2.00 1.50 1.00 1/200 12345\n")

	host := newHostSource(proc, "")
	ctx := context.Background()
	memory, err := host.MemoryPercent(ctx)
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if memory != 75 {
		t.Fatalf("expected 75%% memory, got %v", memory)
	}
	load1, err := host.Load1(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if load1 != 2 {
		t.Fatalf("expected load 2, got %v", load1)
	}
}

func TestPickTemperaturePrefersCPUSensor(t *testing.T) {
	temps := []sensors.TemperatureStat{
		{SensorKey: "nvme_composite", Temperature: 38},
		{SensorKey: "cpu_thermal", Temperature: 51.2},
	}
	if got := pickTemperature(temps); got != 51.2 {
		t.Fatalf("expected cpu sensor reading, got %v", got)
	}
	if got := pickTemperature(temps[:1]); got != 38 {
		t.Fatalf("expected fallback reading, got %v", got)
	}
	if got := pickTemperature(nil); got != 0 {
		t.Fatalf("expected 0 without sensors, got %v", got)
	}
}
