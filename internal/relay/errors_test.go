package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"testing"
)

func TestClassifyNetwork(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind Kind
		wantCode string
	}{
		{
			name:     "dns failure",
			err:      &net.OpError{Op: "dial", Net: "tcp", Err: &net.DNSError{Err: "no such host", Name: "smtp.invalid", IsNotFound: true}},
			wantKind: KindNetwork,
			wantCode: CodeDNS,
		},
		{
			name:     "connection refused",
			err:      &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connect: connection refused")},
			wantKind: KindNetwork,
			wantCode: CodeConnection,
		},
		{
			name:     "dial timeout is unreachable",
			err:      &net.OpError{Op: "dial", Net: "tcp", Err: os.ErrDeadlineExceeded},
			wantKind: KindNetwork,
			wantCode: CodeConnection,
		},
		{
			name:     "read timeout",
			err:      &net.OpError{Op: "read", Net: "tcp", Err: os.ErrDeadlineExceeded},
			wantKind: KindTimeout,
			wantCode: CodeTimeout,
		},
		{
			name:     "context deadline",
			err:      fmt.Errorf("send: %w", context.DeadlineExceeded),
			wantKind: KindTimeout,
			wantCode: CodeTimeout,
		},
		{
			name:     "connection reset",
			err:      &net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset by peer")},
			wantKind: KindUnknown,
			wantCode: CodeConnection,
		},
		{
			name:     "anything else",
			err:      errors.New("boom"),
			wantKind: KindUnknown,
			wantCode: CodeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyNetwork("smtp", tt.err)
			if got.Kind != tt.wantKind {
				t.Errorf("Kind: got %v, want %v", got.Kind, tt.wantKind)
			}
			if got.Code != tt.wantCode {
				t.Errorf("Code: got %q, want %q", got.Code, tt.wantCode)
			}
			if !errors.Is(got, tt.err) {
				t.Error("classified error should wrap the original")
			}
		})
	}
}

func TestClassifyNetwork_KeepsClassifiedError(t *testing.T) {
	orig := &Error{Kind: KindAuth, Code: CodeAuth, Provider: "smtp", Status: 535, Err: errors.New("bad credentials")}

	if got := ClassifyNetwork("smtp", fmt.Errorf("wrapped: %w", orig)); got != orig {
		t.Errorf("got %v, want the original *Error", got)
	}
}

func TestIsNetwork(t *testing.T) {
	network := &Error{Kind: KindNetwork, Code: CodeDNS, Provider: "smtp", Err: errors.New("no such host")}
	auth := &Error{Kind: KindAuth, Code: CodeAuth, Provider: "smtp", Err: errors.New("denied")}

	if !IsNetwork(fmt.Errorf("dispatch: %w", network)) {
		t.Error("wrapped network error should be detected")
	}
	if IsNetwork(auth) {
		t.Error("auth error is not a network error")
	}
	if IsNetwork(errors.New("plain")) {
		t.Error("plain error is not a network error")
	}
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Kind: KindRejected, Code: CodeEnvelope, Provider: "smtp", Status: 550, Err: errors.New("mailbox unavailable")}

	want := "smtp relay: EENVELOPE (550): mailbox unavailable"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
