package links

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// QR code image sizes in pixels.
const (
	DefaultQRSize = 256
	MinQRSize     = 64
	MaxQRSize     = 1024
)

// QRCode renders content as a square PNG QR code. The size is clamped to
// MinQRSize..MaxQRSize; zero means DefaultQRSize. Medium error correction
// keeps printed codes readable with some damage.
func QRCode(content string, size int) ([]byte, error) {
	switch {
	case size == 0:
		size = DefaultQRSize
	case size < MinQRSize:
		size = MinQRSize
	case size > MaxQRSize:
		size = MaxQRSize
	}

	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encoding qr code: %w", err)
	}
	return png, nil
}
