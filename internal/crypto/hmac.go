package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// Header names carried by signed exchange API requests.
const (
	HeaderAPIKey    = "X-Api-Key"
	HeaderTimestamp = "X-Api-Timestamp"
	HeaderSignature = "X-Api-Signature"
)

// HMACAuth signs exchange API requests: the signature is
// base64(HMAC-SHA256(secret, timestamp + method + path + body)).
type HMACAuth struct {
	Key    string
	Secret string
}

// Headers returns the auth headers for a request made now.
func (h HMACAuth) Headers(method, path, body string) map[string]string {
	return h.HeadersAt(method, path, body, time.Now().Unix())
}

// HeadersAt is Headers with an explicit Unix timestamp.
func (h HMACAuth) HeadersAt(method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	return map[string]string{
		HeaderAPIKey:    h.Key,
		HeaderTimestamp: ts,
		HeaderSignature: Sign(h.Secret, ts+method+path+body),
	}
}

// Verify reports whether sig is the signature of the given request parts.
func (h HMACAuth) Verify(method, path, body, ts, sig string) bool {
	want := Sign(h.Secret, ts+method+path+body)
	return hmac.Equal([]byte(want), []byte(sig))
}

// Sign returns base64(HMAC-SHA256(secret, message)).
func Sign(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// String redacts the credentials.
func (h HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}
