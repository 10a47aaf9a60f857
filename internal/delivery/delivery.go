// Package delivery sends one-time passcodes to their owners.
package delivery

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
	"time"

	"github.com/redmonkez12/payflow-auth/internal/logging"
	"github.com/redmonkez12/payflow-auth/internal/otp"
)

// Channel names accepted by New
const (
	ChannelResponse = "response"
	ChannelLog      = "log"
)

// Deliverer hands a code to its owner out of band
type Deliverer interface {
	Deliver(ctx context.Context, email, code string, validFor time.Duration) error
}

// New returns the deliverer for a configured channel
func New(channel string, logger *logging.Logger) (Deliverer, error) {
	switch channel {
	case ChannelResponse:
		return ResponseDeliverer{}, nil
	case ChannelLog:
		return NewLogDeliverer(logger), nil
	default:
		return nil, fmt.Errorf("unknown otp delivery channel %q", channel)
	}
}

// ResponseDeliverer sends nothing and relies on the login response, which
// carries the code whatever the channel.
type ResponseDeliverer struct{}

func (ResponseDeliverer) Deliver(context.Context, string, string, time.Duration) error {
	return nil
}

var messageTemplate = template.Must(template.New("otp").Parse(
	`Your PayFlow verification code is {{.Code}}. It expires in {{.Window}}. If you did not try to sign in, change your password.`,
))

// LogDeliverer writes the rendered message to the log instead of a mailbox
type LogDeliverer struct {
	logger *logging.Logger
}

func NewLogDeliverer(logger *logging.Logger) *LogDeliverer {
	return &LogDeliverer{logger: logger}
}

func (d *LogDeliverer) Deliver(ctx context.Context, email, code string, validFor time.Duration) error {
	body, err := renderMessage(code, validFor)
	if err != nil {
		return fmt.Errorf("render template: %w", err)
	}

	d.logger.InfoContext(ctx, "otp delivered", "channel", ChannelLog, "email", email, "subject", "Your verification code", "body", body)
	return nil
}

func renderMessage(code string, validFor time.Duration) (string, error) {
	data := struct {
		Code   string
		Window string
	}{
		Code:   code,
		Window: otp.FormatWindow(validFor),
	}

	var buf bytes.Buffer
	if err := messageTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
