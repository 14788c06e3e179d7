// Package pinqr produces session PINs and their scannable QR symbols.
package pinqr

import (
	"crypto/rand"
	"fmt"
	"math/big"

	qrcode "github.com/skip2/go-qrcode"
)

// Symbol rendering matches the original display: 200px, correction level H.
const (
	SymbolSize = 200

	pinMin  = 100000
	pinSpan = 900000
)

// GeneratePIN returns a 6-digit numeric string drawn uniformly from
// 100000-999999. There is no collision avoidance against other active
// PINs; submission validation is always scoped by course, so a collision
// across courses cannot misattribute a record.
func GeneratePIN() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(pinSpan))
	if err != nil {
		return "", fmt.Errorf("generate pin: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+pinMin), nil
}

// Encode renders payload as a PNG QR symbol. Failure (payload beyond the
// symbol's capacity) is recoverable; the session record is persisted
// regardless of whether a symbol could be drawn.
func Encode(payload string) ([]byte, error) {
	png, err := qrcode.Encode(payload, qrcode.High, SymbolSize)
	if err != nil {
		return nil, fmt.Errorf("encode qr payload: %w", err)
	}
	return png, nil
}
