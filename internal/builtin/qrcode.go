package builtin

import (
	"encoding/base64"
	"fmt"
	"image/color"

	qrcode "github.com/skip2/go-qrcode"
)

// qrSize is the rendered edge length in pixels.
const qrSize = 800

// qrDataURL renders text as a white-on-transparent PNG QR code, for dark
// dashboard themes, and returns it as a data URL.
func qrDataURL(text string) (string, error) {
	if text == "" {
		return "", fmt.Errorf("qrcode: empty content")
	}
	code, err := qrcode.New(text, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("qrcode: encode: %w", err)
	}
	code.ForegroundColor = color.White
	code.BackgroundColor = color.Transparent
	png, err := code.PNG(qrSize)
	if err != nil {
		return "", fmt.Errorf("qrcode: render: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
