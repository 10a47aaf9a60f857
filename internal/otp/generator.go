package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
)

const (
	codeMin = 100000
	codeMax = 999999
)

var codePattern = regexp.MustCompile(`^\d{6}$`)

// Generate returns a code drawn uniformly from [100000, 999999]
func Generate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeMax-codeMin+1))
	if err != nil {
		return "", fmt.Errorf("failed to generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+codeMin), nil
}

// ValidFormat reports whether code is exactly six ASCII digits
func ValidFormat(code string) bool {
	return codePattern.MatchString(code)
}
