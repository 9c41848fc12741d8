package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
)

// Kind groups transport failures by what the caller can do about them.
type Kind int

const (
	KindUnknown Kind = iota
	// KindNetwork means the relay host could not be resolved or reached.
	KindNetwork
	// KindTimeout means the exchange started but did not finish in time.
	KindTimeout
	// KindAuth means the relay refused the credentials.
	KindAuth
	// KindRejected means the relay refused the sender, recipient or content.
	KindRejected
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindAuth:
		return "auth"
	case KindRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Error codes reported to callers. They carry no credential data and are
// safe to echo in responses.
const (
	CodeDNS        = "EDNS"
	CodeConnection = "ECONNECTION"
	CodeTimeout    = "ETIMEDOUT"
	CodeTLS        = "ETLS"
	CodeAuth       = "EAUTH"
	CodeEnvelope   = "EENVELOPE"
	CodeMessage    = "EMESSAGE"
	CodeProtocol   = "EPROTOCOL"
	CodeUnknown    = "EUNKNOWN"
)

// Error is a classified transport failure.
type Error struct {
	Kind     Kind
	Code     string
	Provider string
	// Status is the numeric reply code of the remote server, when there was one.
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s relay: %s (%d): %v", e.Provider, e.Code, e.Status, e.Err)
	}
	return fmt.Sprintf("%s relay: %s: %v", e.Provider, e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsNetwork reports whether err is a relay failure to reach the host.
func IsNetwork(err error) bool {
	var relayErr *Error
	return errors.As(err, &relayErr) && relayErr.Kind == KindNetwork
}

// ClassifyNetwork maps connection-level errors from the standard library.
// Errors it does not recognise become KindUnknown.
func ClassifyNetwork(provider string, err error) *Error {
	var relayErr *Error
	if errors.As(err, &relayErr) {
		return relayErr
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Error{Kind: KindNetwork, Code: CodeDNS, Provider: provider, Err: err}
	}

	// A dial that never completes is an unreachable host, even on timeout.
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return &Error{Kind: KindNetwork, Code: CodeConnection, Provider: provider, Err: err}
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{Kind: KindTimeout, Code: CodeTimeout, Provider: provider, Err: err}
	}

	if opErr != nil {
		return &Error{Kind: KindUnknown, Code: CodeConnection, Provider: provider, Err: err}
	}

	return &Error{Kind: KindUnknown, Code: CodeUnknown, Provider: provider, Err: err}
}
