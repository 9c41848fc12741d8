package contact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/welldanyogia/contact-mailer/internal/logger"
	"github.com/welldanyogia/contact-mailer/internal/metrics"
	"github.com/welldanyogia/contact-mailer/internal/origin"
	"github.com/welldanyogia/contact-mailer/internal/relay"
	"github.com/welldanyogia/contact-mailer/internal/sanitizer"
)

var (
	// ErrOriginRejected is returned for callers whose origin is not registered.
	ErrOriginRejected = errors.New("origin rejected")
	// ErrCredentialMisconfigured is returned when the origin's credential
	// bundle is incomplete. No delivery is attempted.
	ErrCredentialMisconfigured = errors.New("credential bundle incomplete")
)

// Resolver maps a request origin to its credentials.
type Resolver interface {
	Resolve(origin string) (origin.CredentialBundle, error)
}

// Dispatcher turns a validated submission into one relay call.
type Dispatcher struct {
	resolver Resolver
	relay    relay.Relay
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewDispatcher creates a Dispatcher. A zero timeout leaves the relay call
// bounded only by the request context.
func NewDispatcher(resolver Resolver, rl relay.Relay, timeout time.Duration, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		resolver: resolver,
		relay:    rl,
		timeout:  timeout,
		logger:   log,
		now:      time.Now,
	}
}

// Dispatch resolves the credentials for requestOrigin and relays the form.
// It makes exactly one relay attempt. Relay failures are returned as
// *relay.Error.
func (d *Dispatcher) Dispatch(ctx context.Context, requestOrigin string, form *SubmissionForm) (*relay.Receipt, error) {
	log := logger.WithCorrelationID(ctx, d.logger)
	provider := d.relay.Name()

	bundle, err := d.resolver.Resolve(requestOrigin)
	if err != nil {
		metrics.RelayDispatchTotal.WithLabelValues(provider, "origin_rejected").Inc()
		log.DebugContext(ctx, "origin rejected", slog.String("origin", requestOrigin))
		return nil, fmt.Errorf("%w: %q", ErrOriginRejected, requestOrigin)
	}
	if !bundle.Complete() {
		metrics.RelayDispatchTotal.WithLabelValues(provider, "misconfigured").Inc()
		log.ErrorContext(ctx, "incomplete bundle",
			slog.String("origin", requestOrigin),
			slog.Any("missing", bundle.MissingFields()),
		)
		return nil, ErrCredentialMisconfigured
	}

	env := d.BuildEnvelope(bundle, form)
	dispatchID := uuid.NewString()

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := d.now()
	receipt, err := d.relay.Send(ctx, relay.Session{
		Identity: bundle.SenderIdentity,
		Secret:   bundle.TransportSecret,
	}, env)
	metrics.RelayDuration.WithLabelValues(provider).Observe(d.now().Sub(start).Seconds())

	if err != nil {
		relayErr := relay.ClassifyNetwork(provider, err)
		metrics.RelayDispatchTotal.WithLabelValues(provider, relayErr.Kind.String()).Inc()
		log.ErrorContext(ctx, "relay dispatch failed",
			slog.String("dispatch_id", dispatchID),
			slog.String("origin", requestOrigin),
			slog.String("provider", provider),
			slog.String("kind", relayErr.Kind.String()),
			slog.String("code", relayErr.Code),
			slog.String("error", relayErr.Error()),
		)
		return nil, relayErr
	}

	receipt.DispatchID = dispatchID
	metrics.RelayDispatchTotal.WithLabelValues(provider, "sent").Inc()
	log.InfoContext(ctx, "contact message relayed",
		slog.String("dispatch_id", dispatchID),
		slog.String("origin", requestOrigin),
		slog.String("provider", provider),
		slog.String("message_id", receipt.MessageID),
		slog.Duration("duration", d.now().Sub(start)),
	)
	return receipt, nil
}

// BuildEnvelope renders the outbound plain-text message for form. Name and
// company end up in the subject, so they are folded onto one line; every
// other field is copied verbatim.
func (d *Dispatcher) BuildEnvelope(bundle origin.CredentialBundle, form *SubmissionForm) *relay.Envelope {
	name := sanitizer.SingleLine(form.Name)
	company := sanitizer.SingleLine(form.Company)

	subject := "Contato de " + name
	if company != "" {
		subject += " - " + company
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Nome: %s\n", name)
	fmt.Fprintf(&body, "Empresa: %s\n", company)
	fmt.Fprintf(&body, "E-mail: %s\n", form.Email)
	fmt.Fprintf(&body, "Telefone: %s\n", form.Phone)
	body.WriteString("\nMensagem:\n")
	body.WriteString(form.Message)

	return &relay.Envelope{
		From:    bundle.SenderIdentity,
		To:      bundle.RecipientAddress,
		ReplyTo: form.Email,
		Subject: subject,
		Body:    body.String(),
	}
}
