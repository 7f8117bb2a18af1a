package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// ReplayWindow is the maximum allowed skew between a webhook's declared
// timestamp and receipt time.
const ReplayWindow = 300 * time.Second

// VerifySignature checks the inbound signature against an HMAC-SHA256 digest
// of the raw request body. The signature must carry the "sha256=" prefix and
// is compared in constant time; a length mismatch or missing signature is an
// immediate rejection.
func VerifySignature(payload []byte, signature, secret string) bool {
	if signature == "" {
		return false
	}
	if !strings.HasPrefix(signature, "sha256=") {
		return false
	}
	got := signature[len("sha256="):]

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	want := hex.EncodeToString(mac.Sum(nil))

	if len(got) != len(want) {
		return false
	}
	return hmac.Equal([]byte(got), []byte(want))
}

// VerifyTimestamp checks the optional signature-timestamp header (Unix
// seconds) against now. An absent header passes; a present header must be
// within the replay window regardless of signature validity.
func VerifyTimestamp(header string, now time.Time) bool {
	if header == "" {
		return true
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(header), 10, 64)
	if err != nil {
		return false
	}
	// Bounds check in whole seconds; subtracting distant timestamps
	// or converting the skew to a Duration can overflow.
	window := int64(ReplayWindow / time.Second)
	nowSec := now.Unix()
	return ts >= nowSec-window && ts <= nowSec+window
}
