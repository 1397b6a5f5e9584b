package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const (
	TicketNumberLength     = 16
	VerificationCodeLength = 6

	// VerificationCodeCharset leaves out 0, O, 1 and I.
	VerificationCodeCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	digitCharset = "0123456789"
	randomDigits = 12
)

// GenerateTicketNumber returns the last four digits of now in Unix
// milliseconds followed by twelve random digits. The result is not unique by
// itself; callers must check it against issued tickets and holds.
func GenerateTicketNumber(now time.Time) (string, error) {
	prefix := fmt.Sprintf("%04d", now.UnixMilli()%10000)

	suffix, err := randomString(digitCharset, randomDigits)
	if err != nil {
		return "", err
	}

	return prefix + suffix, nil
}

// GenerateVerificationCode draws six characters uniformly, with replacement,
// from VerificationCodeCharset.
func GenerateVerificationCode() (string, error) {
	return randomString(VerificationCodeCharset, VerificationCodeLength)
}

func randomString(charset string, length int) (string, error) {
	limit := big.NewInt(int64(len(charset)))
	code := make([]byte, length)

	for i := range code {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		code[i] = charset[n.Int64()]
	}

	return string(code), nil
}
