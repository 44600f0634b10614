package fraud

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/mssola/useragent"

	"github.com/veridata/surveyguard/internal/event"
)

// Fingerprinter derives a stable device fingerprint from the user agent and
// the device attributes of a session. The same inputs always hash to the
// same value, so reuse is detectable with an index lookup.
type Fingerprinter struct {
	secret []byte
}

// NewFingerprinter builds a fingerprinter keyed with secret. The key makes
// fingerprints installation-local without changing their stability.
func NewFingerprinter(secret string) *Fingerprinter {
	return &Fingerprinter{secret: []byte(secret)}
}

// Derive hashes the browser family, OS, screen, viewport, locale, timezone,
// and platform into a 32-char hex fingerprint. Returns "" when neither the
// user agent nor a device payload carries anything to hash.
func (f *Fingerprinter) Derive(userAgent string, device *event.DevicePayload) string {
	var parts []string

	if userAgent != "" {
		ua := useragent.New(userAgent)
		name, version := ua.Browser()
		parts = append(parts, name, version, ua.OS(), ua.Platform())
	}
	if device != nil {
		parts = append(parts,
			fmt.Sprintf("%dx%d", device.ScreenWidth, device.ScreenHeight),
			fmt.Sprintf("%dx%d", device.ViewportWidth, device.ViewportHeight),
			device.Locale,
			device.Timezone,
			device.Platform,
		)
	}
	if len(parts) == 0 {
		return ""
	}

	h := hmac.New(sha256.New, f.secret)
	h.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h.Sum(nil))[:32]
}
