package utils

import (
	"crypto/subtle"
	"encoding/hex"
	"regexp"
	"strconv"

	"golang.org/x/crypto/blake2b"
)

// QR tokens are the first 16 hex characters of a keyed BLAKE2b-256 digest of
// the table id, so they always satisfy the client's alphanumeric 8..32 rule.
const qrTokenLength = 16

var sessionTokenPattern = regexp.MustCompile(`^[a-zA-Z0-9]{8,32}$`)

// IsWellFormedSessionToken reports whether token has the shape printed on
// table QR codes.
func IsWellFormedSessionToken(token string) bool {
	return sessionTokenPattern.MatchString(token)
}

// SignTableToken derives the QR session token for a table.
func SignTableToken(secret string, tableID uint) (string, error) {
	h, err := blake2b.New256([]byte(secret))
	if err != nil {
		return "", err
	}
	h.Write([]byte("table:" + strconv.FormatUint(uint64(tableID), 10)))
	return hex.EncodeToString(h.Sum(nil))[:qrTokenLength], nil
}

// VerifyTableToken checks token against the table signature. With an empty
// secret only the shape is checked.
func VerifyTableToken(secret string, tableID uint, token string) bool {
	if !IsWellFormedSessionToken(token) {
		return false
	}
	if secret == "" {
		return true
	}
	expected, err := SignTableToken(secret, tableID)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(token)) == 1
}
