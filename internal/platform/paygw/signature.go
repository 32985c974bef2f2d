package paygw

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the webhook HMAC.
const SignatureHeader = "Signature"

// VerifySignature checks an HMAC-SHA256 of rawBody against the header value.
// The header may list several comma separated candidates, each optionally
// prefixed with "v1:" or "v1=", encoded as hex or base64. Any malformed input
// yields false.
func VerifySignature(secret string, rawBody []byte, header string) bool {
	if secret == "" || strings.TrimSpace(header) == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(rawBody)
	want := mac.Sum(nil)

	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		candidate = strings.TrimPrefix(candidate, "v1:")
		candidate = strings.TrimPrefix(candidate, "v1=")
		if candidate == "" {
			continue
		}
		for _, got := range decodeCandidates(candidate) {
			if hmac.Equal(got, want) {
				return true
			}
		}
	}
	return false
}

// Sign produces the canonical "v1:<base64>" header value for rawBody.
func Sign(secret string, rawBody []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(rawBody)
	return "v1:" + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func decodeCandidates(s string) [][]byte {
	var out [][]byte
	if b, err := hex.DecodeString(s); err == nil && len(b) == sha256.Size {
		out = append(out, b)
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil && len(b) == sha256.Size {
			out = append(out, b)
		}
	}
	return out
}
