package qr

import (
	"github.com/pkg/errors"
	qrcode "github.com/skip2/go-qrcode"

	"learner-progress-service/internal/domain"
)

// DefaultSize is the PNG edge length in pixels.
const DefaultSize = 512

// Renderer draws backup payloads as QR code images. Low error correction is
// used so a full 2800 byte payload still fits a single code.
type Renderer struct {
	MaxPayload int
	Size       int
	Level      qrcode.RecoveryLevel
}

func NewRenderer(maxPayload int) *Renderer {
	return &Renderer{MaxPayload: maxPayload, Size: DefaultSize, Level: qrcode.Low}
}

// PNG renders payload. Oversized payloads fail with *domain.CapacityError
// before any encoding is attempted.
func (r *Renderer) PNG(payload string) ([]byte, error) {
	if payload == "" {
		return nil, errors.Wrap(domain.ErrInvalidInput, "empty qr payload")
	}
	if r.MaxPayload > 0 && len(payload) > r.MaxPayload {
		return nil, &domain.CapacityError{Length: len(payload), Limit: r.MaxPayload}
	}
	png, err := qrcode.Encode(payload, r.Level, r.Size)
	if err != nil {
		return nil, errors.Wrap(err, "encode qr code")
	}
	return png, nil
}
