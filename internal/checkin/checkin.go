// Package checkin renders booking check-in links as QR codes.
package checkin

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/matheus3301/roombook/internal/domain"
	qrcode "github.com/skip2/go-qrcode"
)

// ErrNoBaseURL is returned when no check-in base URL is configured.
var ErrNoBaseURL = errors.New("checkin: base url not configured")

// URL returns the check-in link for b under base.
func URL(base string, b domain.Booking) (string, error) {
	if base == "" {
		return "", ErrNoBaseURL
	}
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("checkin: parse base url: %w", err)
	}
	u = u.JoinPath("checkin", b.ID)
	q := u.Query()
	q.Set("room", b.RoomID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Render draws content as a QR code for a terminal. Each output line packs
// two module rows into half-block characters.
func Render(content string) (string, error) {
	qr, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("checkin: encode qr: %w", err)
	}

	bitmap := qr.Bitmap()
	var sb strings.Builder
	for y := 0; y < len(bitmap); y += 2 {
		sb.WriteString("  ")
		for x := range bitmap[y] {
			top := bitmap[y][x]
			bot := y+1 < len(bitmap) && bitmap[y+1][x]
			switch {
			case top && bot:
				sb.WriteRune('█')
			case top:
				sb.WriteRune('▀')
			case bot:
				sb.WriteRune('▄')
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteRune('\n')
	}
	return sb.String(), nil
}

// WritePNG writes content as a PNG QR code of the given pixel size.
func WritePNG(content, path string, size int) error {
	if err := qrcode.WriteFile(content, qrcode.Medium, size, path); err != nil {
		return fmt.Errorf("checkin: write png: %w", err)
	}
	return nil
}
