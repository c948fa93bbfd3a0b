package utils

import (
	"crypto/rand"
	"net/url"
	"strings"
)

// ReferralCodeAlphabet leaves out I, O, 0 and 1, which are easy to misread.
const ReferralCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// ReferralCodeLength is the number of characters in a generated code.
const ReferralCodeLength = 8

// GenerateReferralCode returns a random code drawn from ReferralCodeAlphabet.
// The alphabet has 32 symbols, so reducing a random byte modulo its length
// is unbiased.
func GenerateReferralCode() (string, error) {
	randomBytes := make([]byte, ReferralCodeLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", err
	}
	code := make([]byte, ReferralCodeLength)
	for i, b := range randomBytes {
		code[i] = ReferralCodeAlphabet[int(b)%len(ReferralCodeAlphabet)]
	}
	return string(code), nil
}

// IsReferralCode reports whether code could have been produced by GenerateReferralCode.
func IsReferralCode(code string) bool {
	if len(code) != ReferralCodeLength {
		return false
	}
	for _, r := range code {
		if !strings.ContainsRune(ReferralCodeAlphabet, r) {
			return false
		}
	}
	return true
}

// BuildReferralLink returns the registration link carrying code.
func BuildReferralLink(appURL, code string) string {
	return strings.TrimRight(appURL, "/") + "/register?ref=" + url.QueryEscape(code)
}
