package relay

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"pgregory.net/rapid"
)

func TestBuildMessage(t *testing.T) {
	env := &Envelope{
		From:      "contato@lccopper.com",
		To:        "vendas@lccopper.com",
		ReplyTo:   "ana@acme.com",
		Subject:   "Contato de João - Acme",
		Body:      "Nome: João\nEmpresa: Acme\n\nMensagem:\nOlá, gostaria de um orçamento.",
		MessageID: "abc123@lccopper.com",
	}
	date := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	raw, err := BuildMessage(env, date)
	if err != nil {
		t.Fatalf("BuildMessage: %v", err)
	}

	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("message.Read: %v", err)
	}
	h := mail.Header{Header: entity.Header}

	assertAddress(t, h, "From", env.From)
	assertAddress(t, h, "To", env.To)
	assertAddress(t, h, "Reply-To", env.ReplyTo)

	if subject, err := h.Subject(); err != nil || subject != env.Subject {
		t.Errorf("Subject: got %q (%v), want %q", subject, err, env.Subject)
	}
	if id, err := h.MessageID(); err != nil || id != env.MessageID {
		t.Errorf("Message-ID: got %q (%v), want %q", id, err, env.MessageID)
	}
	if got, err := h.Date(); err != nil || !got.Equal(date) {
		t.Errorf("Date: got %v (%v), want %v", got, err, date)
	}
	if ct, params, _ := h.ContentType(); ct != "text/plain" || !strings.EqualFold(params["charset"], "utf-8") {
		t.Errorf("Content-Type: got %q %v", ct, params)
	}

	body, err := io.ReadAll(entity.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if got := normalizeNewlines(body); got != env.Body {
		t.Errorf("body: got %q, want %q", got, env.Body)
	}
}

func TestBuildMessage_NoReplyTo(t *testing.T) {
	raw, err := BuildMessage(&Envelope{From: "a@example.com", To: "b@example.com", Subject: "s", Body: "b"}, time.Now())
	if err != nil {
		t.Fatalf("BuildMessage: %v", err)
	}
	if bytes.Contains(raw, []byte("Reply-To")) {
		t.Error("Reply-To header should be omitted")
	}
}

// Quoted-printable hard line breaks are CRLF on the wire.
func normalizeNewlines(b []byte) string {
	return strings.ReplaceAll(string(b), "\r\n", "\n")
}

func assertAddress(t *testing.T, h mail.Header, key, want string) {
	t.Helper()
	addrs, err := h.AddressList(key)
	if err != nil {
		t.Fatalf("%s: %v", key, err)
	}
	if len(addrs) != 1 || addrs[0].Address != want {
		t.Errorf("%s: got %v, want %s", key, addrs, want)
	}
}

func TestNewMessageID(t *testing.T) {
	tests := []struct {
		from       string
		wantSuffix string
	}{
		{"contato@lccopper.com", "@lccopper.com"},
		{"no-domain", "@localhost"},
		{"trailing@", "@localhost"},
	}

	for _, tt := range tests {
		id := NewMessageID(tt.from)
		if !strings.HasSuffix(id, tt.wantSuffix) {
			t.Errorf("NewMessageID(%q) = %q, want suffix %q", tt.from, id, tt.wantSuffix)
		}
	}

	if NewMessageID("a@b.co") == NewMessageID("a@b.co") {
		t.Error("message IDs should be unique")
	}
}

// Property: any UTF-8 body survives rendering and decoding unchanged.
func TestBuildMessage_Property_BodyRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		body := rapid.StringMatching(`[a-zA-Z0-9áéíóúãõç =.,:!?\n-]{0,300}`).Draw(t, "body")
		env := &Envelope{From: "a@example.com", To: "b@example.com", Subject: "s", Body: body}

		raw, err := BuildMessage(env, time.Now())
		if err != nil {
			t.Fatalf("BuildMessage: %v", err)
		}
		entity, err := message.Read(bytes.NewReader(raw))
		if err != nil {
			t.Fatalf("message.Read: %v", err)
		}
		got, err := io.ReadAll(entity.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		if normalizeNewlines(got) != body {
			t.Fatalf("body: got %q, want %q", got, body)
		}
	})
}
