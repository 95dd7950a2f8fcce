package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

// errVerification is the only error signature checks return, whatever failed.
var errVerification = errors.New("webhook verification failed")

// verifyHMACSignature checks an HMAC-SHA256 signature of body in constant time.
// The signature is hex, optionally prefixed with "sha256=".
func verifyHMACSignature(body []byte, signature, secret string) error {
	if secret == "" || signature == "" {
		return errVerification
	}

	actual, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), "sha256="))
	if err != nil {
		return errVerification
	}
	if subtle.ConstantTimeCompare(Sign(body, secret), actual) != 1 {
		return errVerification
	}
	return nil
}

// Sign returns the raw HMAC-SHA256 of body under secret.
func Sign(body []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

// SignatureHeaderValue formats a signature the way senders put it in the header.
func SignatureHeaderValue(body []byte, secret string) string {
	return "sha256=" + hex.EncodeToString(Sign(body, secret))
}
