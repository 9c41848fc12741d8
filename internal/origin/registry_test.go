package origin

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func testRegistry() *Registry {
	return NewRegistry(map[string]CredentialBundle{
		"http://localhost:3000": {
			SenderIdentity:   "dev@example.com",
			TransportSecret:  "dev-secret",
			RecipientAddress: "dev-inbox@example.com",
		},
		"https://www.lccopper.com": {
			SenderIdentity:   "site@lccopper.com",
			TransportSecret:  "site-secret",
			RecipientAddress: "comercial@lccopper.com",
		},
		"https://template.example.com": {
			SenderIdentity: "template@example.com",
		},
	})
}

func TestResolve_ExplicitBindings(t *testing.T) {
	reg := testRegistry()

	tests := []struct {
		origin    string
		recipient string
	}{
		{"http://localhost:3000", "dev-inbox@example.com"},
		{"https://www.lccopper.com", "comercial@lccopper.com"},
	}
	for _, tt := range tests {
		bundle, err := reg.Resolve(tt.origin)
		if err != nil {
			t.Fatalf("Resolve(%q): unexpected error %v", tt.origin, err)
		}
		if bundle.RecipientAddress != tt.recipient {
			t.Errorf("Resolve(%q).RecipientAddress: got %q, want %q", tt.origin, bundle.RecipientAddress, tt.recipient)
		}
	}
}

func TestResolve_NoNormalization(t *testing.T) {
	reg := testRegistry()

	for _, origin := range []string{
		"http://localhost:3000/",
		"HTTP://localhost:3000",
		"https://lccopper.com",
		"http://www.lccopper.com",
		"",
	} {
		if _, err := reg.Resolve(origin); !errors.Is(err, ErrOriginNotFound) {
			t.Errorf("Resolve(%q): got %v, want ErrOriginNotFound", origin, err)
		}
		if reg.Has(origin) {
			t.Errorf("Has(%q): want false", origin)
		}
	}
}

// For any origin not in the registry, Resolve reports ErrOriginNotFound.
func TestProperty_UnknownOriginsRejected(t *testing.T) {
	reg := testRegistry()

	rapid.Check(t, func(t *rapid.T) {
		origin := rapid.String().Draw(t, "origin")
		if reg.Has(origin) {
			t.Skip("drew a registered origin")
		}
		if _, err := reg.Resolve(origin); !errors.Is(err, ErrOriginNotFound) {
			t.Fatalf("Resolve(%q): got %v, want ErrOriginNotFound", origin, err)
		}
	})
}

func TestNewRegistry_CopiesEntries(t *testing.T) {
	entries := map[string]CredentialBundle{
		"https://a.example": {SenderIdentity: "a@example.com"},
	}
	reg := NewRegistry(entries)
	entries["https://b.example"] = CredentialBundle{}

	if reg.Has("https://b.example") {
		t.Error("registry should not observe later changes to the input map")
	}
	if reg.Len() != 1 {
		t.Errorf("Len: got %d, want 1", reg.Len())
	}
}

func TestOrigins_Sorted(t *testing.T) {
	got := testRegistry().Origins()
	want := []string{"http://localhost:3000", "https://template.example.com", "https://www.lccopper.com"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Origins: got %v, want %v", got, want)
	}
}

func TestCredentialBundle_Complete(t *testing.T) {
	full := CredentialBundle{SenderIdentity: "a", TransportSecret: "b", RecipientAddress: "c"}
	if !full.Complete() {
		t.Error("full bundle should be complete")
	}
	if len(full.MissingFields()) != 0 {
		t.Errorf("MissingFields: got %v, want none", full.MissingFields())
	}

	partial := CredentialBundle{SenderIdentity: "a"}
	if partial.Complete() {
		t.Error("partial bundle should not be complete")
	}
	if got := strings.Join(partial.MissingFields(), ","); got != "transport_secret,recipient_address" {
		t.Errorf("MissingFields: got %q", got)
	}
}

func TestCredentialBundle_LogValueHidesSecret(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	log.Info("resolved", "bundle", CredentialBundle{
		SenderIdentity:   "site@example.com",
		TransportSecret:  "super-secret-value",
		RecipientAddress: "inbox@example.com",
	})

	if strings.Contains(buf.String(), "super-secret-value") {
		t.Fatalf("secret leaked into log output: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "site@example.com") {
		t.Errorf("sender missing from log output: %s", buf.String())
	}
}
