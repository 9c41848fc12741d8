// Package relay defines the outbound mail transport used to deliver contact
// submissions, and the pieces shared by its providers: the envelope, the
// delivery receipt, error classification and message rendering.
package relay

import (
	"context"
	"log/slog"
)

// Session holds the per-origin credentials a provider authenticates with.
type Session struct {
	// Identity is the login and the envelope sender.
	Identity string
	// Secret is the password or API secret. It must never be logged.
	Secret string
}

// LogValue implements slog.LogValuer and leaves the secret out.
func (s Session) LogValue() slog.Value {
	return slog.GroupValue(slog.String("identity", s.Identity))
}

// Envelope is a single-recipient plain text message.
type Envelope struct {
	From    string
	To      string
	ReplyTo string
	Subject string
	Body    string
	// MessageID is the identifier without angle brackets. Providers that
	// render the message themselves use it for the Message-ID header.
	MessageID string
}

// ReceiptEnvelope is the SMTP envelope the provider actually used.
type ReceiptEnvelope struct {
	From string   `json:"from"`
	To   []string `json:"to"`
}

// Receipt describes an accepted delivery.
type Receipt struct {
	MessageID  string          `json:"messageId"`
	Accepted   []string        `json:"accepted"`
	Rejected   []string        `json:"rejected"`
	Envelope   ReceiptEnvelope `json:"envelope"`
	Response   string          `json:"response"`
	Provider   string          `json:"provider"`
	DispatchID string          `json:"dispatchId,omitempty"`
}

// Relay delivers one message per call. Implementations make exactly one
// delivery attempt and report failures as *Error.
type Relay interface {
	Send(ctx context.Context, session Session, env *Envelope) (*Receipt, error)

	// Name returns the provider name used in logs and metrics.
	Name() string
}
