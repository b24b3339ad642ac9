package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
)

const maskedTaxID = "***-**-****"

// Fingerprinter derives a stable, non-reversible reference for a tax id so it
// can appear in logs and events without exposing the identifier itself.
type Fingerprinter struct {
	secretKey []byte
	logger    *slog.Logger
}

func NewFingerprinter(secretKey string, logger *slog.Logger) *Fingerprinter {
	if logger == nil {
		logger = slog.Default()
	}
	if secretKey == "" {
		logger.Warn("Tax id fingerprint secret is empty, fingerprints are guessable")
	}
	return &Fingerprinter{
		secretKey: []byte(secretKey),
		logger:    logger,
	}
}

func (f *Fingerprinter) Sign(data []byte) string {
	mac := hmac.New(sha256.New, f.secretKey)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// Fingerprint returns the first 16 hex characters of the HMAC of the
// normalized tax id.
func (f *Fingerprinter) Fingerprint(taxID string) string {
	normalized := strings.ReplaceAll(strings.TrimSpace(taxID), "-", "")
	return f.Sign([]byte(normalized))[:16]
}

// Matches reports whether fingerprint was produced for taxID.
func (f *Fingerprinter) Matches(taxID, fingerprint string) bool {
	return hmac.Equal([]byte(f.Fingerprint(taxID)), []byte(fingerprint))
}

// MaskTaxID keeps only the last four characters.
func MaskTaxID(taxID string) string {
	if len(taxID) < 4 {
		return maskedTaxID
	}
	return "***-**-" + taxID[len(taxID)-4:]
}
