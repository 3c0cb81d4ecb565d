package output

import (
	"io"
	"net/url"

	"github.com/mdp/qrterminal/v3"
	"rsc.io/qr"

	"github.com/mrz1836/satchel/internal/chain"
)

// QRConfig configures terminal QR rendering.
type QRConfig struct {
	Level      qr.Level
	QuietZone  int
	HalfBlocks bool
	// Force renders even when the writer is not a terminal.
	Force bool
}

// DefaultQRConfig returns settings suited to a receive address.
func DefaultQRConfig() QRConfig {
	return QRConfig{
		Level:      qr.M,
		QuietZone:  1,
		HalfBlocks: true,
	}
}

// PaymentURI returns a BIP21 "bitcoin:" URI for address. A zero amount
// omits the amount parameter.
func PaymentURI(address string, sats uint64) string {
	uri := "bitcoin:" + address
	if sats > 0 {
		q := url.Values{}
		q.Set("amount", chain.FormatBTC(sats))
		uri += "?" + q.Encode()
	}
	return uri
}

// RenderQR draws data as a QR code on w. Nothing is written when w is not a
// terminal unless cfg.Force is set.
func RenderQR(w io.Writer, data string, cfg QRConfig) bool {
	if w == nil || (!cfg.Force && !IsTerminal(w)) {
		return false
	}
	qrterminal.GenerateWithConfig(data, qrterminal.Config{
		Level:          cfg.Level,
		Writer:         w,
		QuietZone:      cfg.QuietZone,
		HalfBlocks:     cfg.HalfBlocks,
		BlackChar:      qrterminal.BLACK_BLACK,
		WhiteChar:      qrterminal.WHITE_WHITE,
		WhiteBlackChar: qrterminal.WHITE_BLACK,
		BlackWhiteChar: qrterminal.BLACK_WHITE,
	})
	return true
}
