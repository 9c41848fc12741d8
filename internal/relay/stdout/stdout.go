// Package stdout implements a relay provider that prints messages instead
// of delivering them. It is meant for local development.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/welldanyogia/contact-mailer/internal/relay"
)

const separator = "========================================\n"

// Provider writes each envelope to a writer in a readable format.
type Provider struct {
	mu     sync.Mutex
	writer io.Writer
}

// New creates a Provider that writes to os.Stdout.
func New() *Provider {
	return &Provider{writer: os.Stdout}
}

// NewWithWriter creates a Provider that writes to w.
func NewWithWriter(w io.Writer) *Provider {
	return &Provider{writer: w}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "stdout"
}

// Send prints env. The session secret is never printed.
func (p *Provider) Send(_ context.Context, session relay.Session, env *relay.Envelope) (*relay.Receipt, error) {
	if env.MessageID == "" {
		env.MessageID = relay.NewMessageID(env.From)
	}

	var b strings.Builder
	b.WriteString(separator)
	fmt.Fprintf(&b, "Message-ID: <%s>\n", env.MessageID)
	fmt.Fprintf(&b, "Identity: %s\n", session.Identity)
	fmt.Fprintf(&b, "From: %s\n", env.From)
	fmt.Fprintf(&b, "To: %s\n", env.To)
	if env.ReplyTo != "" {
		fmt.Fprintf(&b, "Reply-To: %s\n", env.ReplyTo)
	}
	fmt.Fprintf(&b, "Subject: %s\n", env.Subject)
	b.WriteString("Body:\n")
	b.WriteString(env.Body + "\n")
	b.WriteString(separator)

	p.mu.Lock()
	_, err := io.WriteString(p.writer, b.String())
	p.mu.Unlock()
	if err != nil {
		return nil, &relay.Error{Kind: relay.KindUnknown, Code: relay.CodeUnknown, Provider: p.Name(), Err: err}
	}

	return &relay.Receipt{
		MessageID: "<" + env.MessageID + ">",
		Accepted:  []string{env.To},
		Rejected:  []string{},
		Envelope: relay.ReceiptEnvelope{
			From: env.From,
			To:   []string{env.To},
		},
		Response: "250 message written to stdout",
		Provider: p.Name(),
	}, nil
}
