// Package origin maps the allowed front-end origins to the credentials used
// to relay their contact-form mail.
package origin

import (
	"errors"
	"log/slog"
	"sort"
)

// ErrOriginNotFound is returned for origins that are not in the registry.
var ErrOriginNotFound = errors.New("origin not registered")

// CredentialBundle holds the outbound mail credentials of one origin.
type CredentialBundle struct {
	// SenderIdentity is the authenticated mailbox the message is sent from.
	SenderIdentity string
	// TransportSecret authenticates SenderIdentity against the relay.
	TransportSecret string
	// RecipientAddress receives the submissions of this origin.
	RecipientAddress string
}

// Complete reports whether all three fields are populated. An incomplete
// bundle must never be used for delivery.
func (b CredentialBundle) Complete() bool {
	return b.SenderIdentity != "" && b.TransportSecret != "" && b.RecipientAddress != ""
}

// MissingFields names the empty fields, for operator logs only.
func (b CredentialBundle) MissingFields() []string {
	var missing []string
	if b.SenderIdentity == "" {
		missing = append(missing, "sender_identity")
	}
	if b.TransportSecret == "" {
		missing = append(missing, "transport_secret")
	}
	if b.RecipientAddress == "" {
		missing = append(missing, "recipient_address")
	}
	return missing
}

// LogValue keeps the secret out of structured logs.
func (b CredentialBundle) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("sender", b.SenderIdentity),
		slog.String("recipient", b.RecipientAddress),
		slog.Bool("complete", b.Complete()),
	)
}

// Registry is an immutable exact-match lookup from origin to credentials.
type Registry struct {
	bundles map[string]CredentialBundle
}

// NewRegistry copies entries into a new Registry.
func NewRegistry(entries map[string]CredentialBundle) *Registry {
	bundles := make(map[string]CredentialBundle, len(entries))
	for origin, bundle := range entries {
		bundles[origin] = bundle
	}
	return &Registry{bundles: bundles}
}

// Resolve returns the bundle configured for origin. The match is exact: no
// case folding and no trailing-slash trimming.
func (r *Registry) Resolve(origin string) (CredentialBundle, error) {
	bundle, ok := r.bundles[origin]
	if !ok {
		return CredentialBundle{}, ErrOriginNotFound
	}
	return bundle, nil
}

// Has reports whether origin is registered.
func (r *Registry) Has(origin string) bool {
	_, ok := r.bundles[origin]
	return ok
}

// Origins returns the registered origins in sorted order.
func (r *Registry) Origins() []string {
	origins := make([]string, 0, len(r.bundles))
	for origin := range r.bundles {
		origins = append(origins, origin)
	}
	sort.Strings(origins)
	return origins
}

// Len returns the number of registered origins.
func (r *Registry) Len() int {
	return len(r.bundles)
}
