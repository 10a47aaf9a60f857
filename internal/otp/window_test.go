package otp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatWindow(t *testing.T) {
	tests := map[time.Duration]string{
		10 * time.Minute: "10 minutes",
		time.Minute:      "1 minute",
		2 * time.Hour:    "2 hours",
		90 * time.Minute: "90 minutes",
		45 * time.Second: "45 seconds",
		time.Second:      "1 second",
	}

	for d, want := range tests {
		assert.Equal(t, want, FormatWindow(d), d.String())
	}
}
