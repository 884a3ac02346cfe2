// Package normalize canonicalizes the identifiers that cross the relay:
// WhatsApp sender/recipient numbers, the external contact id derived from
// them, and the deployment environment tag.
package normalize

import (
	"strings"

	"golang.org/x/text/width"
)

const (
	whatsappPrefix = "whatsapp:"
	externalPrefix = "wa:"
)

// E164 returns the canonical "+<digits>" form of a phone address.
//
// Leading "whatsapp:" channel prefixes are stripped (repeatedly), full-width
// digits are folded to ASCII, and every character other than a digit or '+'
// is dropped. A result that already starts with '+' is returned as is; an
// empty result stays empty; anything else gets a '+' prepended.
//
// E164 is idempotent: E164(E164(x)) == E164(x).
func E164(raw string) string {
	s := strings.TrimSpace(raw)
	for {
		low := strings.ToLower(s)
		if !strings.HasPrefix(low, whatsappPrefix) {
			break
		}
		s = strings.TrimSpace(s[len(whatsappPrefix):])
	}
	s = width.Fold.String(s)

	var b strings.Builder
	b.Grow(len(s) + 1)
	for _, r := range s {
		if r == '+' || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	out := b.String()
	switch {
	case out == "":
		return ""
	case strings.HasPrefix(out, "+"):
		return out
	default:
		return "+" + out
	}
}

// ExternalContactID derives the stable external id used for contact and
// conversation mappings. Empty input yields "".
func ExternalContactID(raw string) string {
	e := E164(raw)
	if e == "" {
		return ""
	}
	return externalPrefix + e
}

// Mask hides all but the last four digits of a number for logging.
// Values of four characters or fewer are returned unchanged.
func Mask(e164 string) string {
	if len(e164) <= 4 {
		return e164
	}
	prefix := ""
	if strings.HasPrefix(e164, "+") {
		prefix = "+"
	}
	return prefix + "****" + e164[len(e164)-4:]
}

// Env maps a raw environment flag to "prod" or "dev".
func Env(raw string) string {
	if strings.EqualFold(strings.TrimSpace(raw), "prod") {
		return "prod"
	}
	return "dev"
}
