// Package signature verifies the HMAC signatures that Twilio and Intercom
// attach to webhook deliveries.
//
// Verification fails closed: a missing header, a missing secret or any
// mismatch yields false. Nothing in this package returns an error or panics
// on attacker-controlled input.
package signature

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // both providers sign with HMAC-SHA1
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// Header names carrying the provider signatures.
const (
	TwilioHeader   = "X-Twilio-Signature"
	IntercomHeader = "X-Hub-Signature"
)

const intercomPrefix = "sha1="

// SignTwilio computes Base64(HMAC-SHA1(authToken, fullURL + sorted params)),
// where every form key is sorted and concatenated with each of its values.
func SignTwilio(authToken, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		vals := append([]string(nil), form[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			b.WriteString(k)
			b.WriteString(v)
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyTwilio reports whether header is the Twilio signature of the request.
func VerifyTwilio(authToken, header, fullURL string, form url.Values) bool {
	header = strings.TrimSpace(header)
	if authToken == "" || header == "" {
		return false
	}
	return ConstantTimeEqual(SignTwilio(authToken, fullURL, form), header)
}

// SignIntercom computes the lower-case hex HMAC-SHA1 of body.
func SignIntercom(secret string, body []byte) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyIntercom reports whether header ("sha1=<hex>" or bare hex) matches
// the signature of body under secret. Hex comparison is case-insensitive.
func VerifyIntercom(secret, header string, body []byte) bool {
	header = strings.TrimSpace(header)
	header = strings.TrimPrefix(header, intercomPrefix)
	if secret == "" || header == "" {
		return false
	}
	return ConstantTimeEqual(SignIntercom(secret, body), strings.ToLower(header))
}

// ConstantTimeEqual compares a and b without short-circuiting on the first
// differing byte. Strings of different length are never equal.
func ConstantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := 0; i < len(a); i++ {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}
