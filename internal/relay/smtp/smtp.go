// Package smtp implements a relay provider that submits messages to an SMTP
// server, authenticating with the per-origin credentials.
package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"golang.org/x/net/proxy"

	"github.com/welldanyogia/contact-mailer/internal/relay"
)

const providerName = "smtp"

// TLSMode selects how the connection to the server is secured.
type TLSMode string

const (
	// TLSModeAuto picks implicit TLS on port 465, STARTTLS on 587 and
	// plain text on any other port.
	TLSModeAuto     TLSMode = ""
	TLSModeImplicit TLSMode = "tls"
	TLSModeStartTLS TLSMode = "starttls"
	TLSModeNone     TLSMode = "none"
)

// Config holds the SMTP submission settings shared by all origins.
type Config struct {
	Host    string
	Port    int
	TLSMode TLSMode
	// TLSConfig overrides the default client TLS settings.
	TLSConfig *tls.Config
	// SOCKS5Proxy, when set, is the host:port of a SOCKS5 proxy all
	// connections are dialed through.
	SOCKS5Proxy string
	// HelloName is sent with EHLO. The client default is "localhost".
	HelloName   string
	DialTimeout time.Duration
}

// Provider submits messages over SMTP. It is safe for concurrent use; every
// Send opens its own connection.
type Provider struct {
	cfg    Config
	dialer proxy.ContextDialer
	logger *slog.Logger
	now    func() time.Time
}

// New creates an SMTP provider.
func New(cfg Config, log *slog.Logger) (*Provider, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp relay: host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("smtp relay: invalid port %d", cfg.Port)
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	direct := &net.Dialer{Timeout: cfg.DialTimeout}
	var dialer proxy.ContextDialer = direct
	if cfg.SOCKS5Proxy != "" {
		d, err := proxy.SOCKS5("tcp", cfg.SOCKS5Proxy, nil, direct)
		if err != nil {
			return nil, fmt.Errorf("smtp relay: socks5 proxy: %w", err)
		}
		cd, ok := d.(proxy.ContextDialer)
		if !ok {
			return nil, errors.New("smtp relay: socks5 dialer does not support contexts")
		}
		dialer = cd
	}

	return &Provider{
		cfg:    cfg,
		dialer: dialer,
		logger: log,
		now:    time.Now,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return providerName
}

// Addr returns the server address the provider submits to.
func (p *Provider) Addr() string {
	return net.JoinHostPort(p.cfg.Host, strconv.Itoa(p.cfg.Port))
}

func (p *Provider) tlsMode() TLSMode {
	if p.cfg.TLSMode != TLSModeAuto {
		return p.cfg.TLSMode
	}
	switch p.cfg.Port {
	case 465:
		return TLSModeImplicit
	case 587:
		return TLSModeStartTLS
	default:
		return TLSModeNone
	}
}

func (p *Provider) tlsConfig() *tls.Config {
	if p.cfg.TLSConfig != nil {
		return p.cfg.TLSConfig.Clone()
	}
	return &tls.Config{ServerName: p.cfg.Host, MinVersion: tls.VersionTLS12}
}

// Send delivers env in a single SMTP transaction. Cancelling ctx aborts the
// exchange by closing the connection. An empty env.MessageID is filled in.
func (p *Provider) Send(ctx context.Context, session relay.Session, env *relay.Envelope) (*relay.Receipt, error) {
	addr := p.Addr()

	conn, err := p.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, p.classify(ctx, stageConnect, err)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	deadline, hasDeadline := ctx.Deadline()
	if hasDeadline {
		_ = conn.SetDeadline(deadline)
	}

	client, err := p.open(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer client.Close()

	if hasDeadline {
		remaining := time.Until(deadline)
		client.CommandTimeout = remaining
		client.SubmissionTimeout = remaining
	}

	if err := client.Auth(sasl.NewPlainClient("", session.Identity, session.Secret)); err != nil {
		return nil, p.classify(ctx, stageAuth, err)
	}

	if env.MessageID == "" {
		env.MessageID = relay.NewMessageID(env.From)
	}
	raw, err := relay.BuildMessage(env, p.now())
	if err != nil {
		return nil, &relay.Error{Kind: relay.KindUnknown, Code: relay.CodeMessage, Provider: providerName, Err: err}
	}

	if err := client.Mail(env.From, nil); err != nil {
		return nil, p.classify(ctx, stageEnvelope, err)
	}
	if err := client.Rcpt(env.To); err != nil {
		return nil, p.classify(ctx, stageEnvelope, err)
	}

	w, err := client.Data()
	if err != nil {
		return nil, p.classify(ctx, stageData, err)
	}
	if _, err := w.Write(raw); err != nil {
		return nil, p.classify(ctx, stageData, err)
	}
	if err := w.Close(); err != nil {
		return nil, p.classify(ctx, stageData, err)
	}

	// The message is accepted at this point; a failed QUIT is not an error.
	if err := client.Quit(); err != nil {
		p.logger.WarnContext(ctx, "smtp quit failed after message was accepted",
			slog.String("addr", addr),
			slog.String("error", err.Error()),
		)
	}

	return &relay.Receipt{
		MessageID: "<" + env.MessageID + ">",
		Accepted:  []string{env.To},
		Rejected:  []string{},
		Envelope: relay.ReceiptEnvelope{
			From: env.From,
			To:   []string{env.To},
		},
		Response: "250 message accepted by " + addr,
		Provider: providerName,
	}, nil
}

// open reads the greeting and secures the connection according to the TLS mode.
func (p *Provider) open(ctx context.Context, conn net.Conn) (*gosmtp.Client, error) {
	mode := p.tlsMode()

	if mode == TLSModeImplicit {
		tlsConn := tls.Client(conn, p.tlsConfig())
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			return nil, p.classify(ctx, stageTLS, err)
		}
		conn = tlsConn
	}

	client, err := gosmtp.NewClient(conn, p.cfg.Host)
	if err != nil {
		return nil, p.classify(ctx, stageGreeting, err)
	}

	if p.cfg.HelloName != "" {
		if err := client.Hello(p.cfg.HelloName); err != nil {
			client.Close()
			return nil, p.classify(ctx, stageGreeting, err)
		}
	}

	if mode == TLSModeStartTLS {
		if err := client.StartTLS(p.tlsConfig()); err != nil {
			client.Close()
			return nil, p.classify(ctx, stageTLS, err)
		}
	}

	return client, nil
}

type stage int

const (
	stageConnect stage = iota
	stageTLS
	stageGreeting
	stageAuth
	stageEnvelope
	stageData
)

// classify turns a failure at the given stage of the exchange into a
// *relay.Error. Replies from the server are classified by stage; anything
// else is a connection problem.
func (p *Provider) classify(ctx context.Context, at stage, err error) *relay.Error {
	var smtpErr *gosmtp.SMTPError
	if errors.As(err, &smtpErr) {
		e := &relay.Error{Provider: providerName, Status: smtpErr.Code, Err: err}
		switch at {
		case stageAuth:
			e.Kind, e.Code = relay.KindAuth, relay.CodeAuth
		case stageEnvelope:
			e.Kind, e.Code = relay.KindRejected, relay.CodeEnvelope
		case stageData:
			e.Kind, e.Code = relay.KindRejected, relay.CodeMessage
		case stageTLS:
			e.Kind, e.Code = relay.KindUnknown, relay.CodeTLS
		default:
			e.Kind, e.Code = relay.KindUnknown, relay.CodeProtocol
		}
		return e
	}

	if ctxErr := ctx.Err(); ctxErr != nil && at != stageConnect {
		return &relay.Error{
			Kind:     relay.KindTimeout,
			Code:     relay.CodeTimeout,
			Provider: providerName,
			Err:      fmt.Errorf("%w: %v", ctxErr, err),
		}
	}

	if at == stageTLS {
		var recordErr tls.RecordHeaderError
		var certErr *tls.CertificateVerificationError
		if errors.As(err, &recordErr) || errors.As(err, &certErr) {
			return &relay.Error{Kind: relay.KindUnknown, Code: relay.CodeTLS, Provider: providerName, Err: err}
		}
	}

	return relay.ClassifyNetwork(providerName, err)
}
