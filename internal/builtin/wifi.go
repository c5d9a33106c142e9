package builtin

import (
	"context"
	"net/http"
	"strings"

	"github.com/kingrea/smart-mirror/internal/component"
)

var wifiEscaper = strings.NewReplacer(`\`, `\\`, `;`, `\;`, `,`, `\,`, `:`, `\:`, `"`, `\"`)

// wifiQRCode renders the network join payload (WIFI:T:...;S:...;P:...;;)
// as a QR code data URL.
func wifiQRCode(_ context.Context, settings component.Settings, _ *http.Request) (any, error) {
	network := settings.String("networkName")
	if network == "" {
		return component.Fail("WiFi network name not configured"), nil
	}
	security := settings.String("securityType")
	if security == "" {
		security = "WPA"
	}
	var b strings.Builder
	b.WriteString("WIFI:T:")
	b.WriteString(security)
	b.WriteString(";S:")
	b.WriteString(wifiEscaper.Replace(network))
	b.WriteString(";")
	if password := settings.String("password"); password != "" && security != "nopass" {
		b.WriteString("P:")
		b.WriteString(wifiEscaper.Replace(password))
		b.WriteString(";")
	}
	b.WriteString(";")
	payload := b.String()
	qr, err := qrDataURL(payload)
	if err != nil {
		return component.Fail("Failed to generate QR code"), nil
	}
	return map[string]any{
		"qrCode":      qr,
		"networkName": network,
		"payload":     payload,
	}, nil
}
