// Package email validates signup email addresses before an OTP is issued.
package email

import (
	"context"
	"net"
	"net/mail"
	"strings"
)

// Resolver is the subset of net.Resolver used for MX lookups, extracted so
// tests can stub DNS.
type Resolver interface {
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
}

// disposableDomains lists throwaway-mail providers rejected at signup.
// Kept short on purpose; operators extend it via config.
var disposableDomains = map[string]struct{}{
	"mailinator.com":    {},
	"guerrillamail.com": {},
	"10minutemail.com":  {},
	"tempmail.dev":      {},
	"yopmail.com":       {},
	"sharklasers.com":   {},
	"trashmail.com":     {},
	"dispostable.com":   {},
}

// Validator checks address shape, disposable-domain membership, and the
// presence of a mail exchanger for the domain.
type Validator struct {
	resolver Resolver
	extra    map[string]struct{}
}

type Option func(*Validator)

// WithResolver overrides the DNS resolver (tests).
func WithResolver(r Resolver) Option {
	return func(v *Validator) { v.resolver = r }
}

// WithDeniedDomains adds operator-supplied domains to the denylist.
func WithDeniedDomains(domains []string) Option {
	return func(v *Validator) {
		for _, d := range domains {
			v.extra[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
		}
	}
}

func NewValidator(opts ...Option) *Validator {
	v := &Validator{
		resolver: net.DefaultResolver,
		extra:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Normalize lowercases and trims an address for use as a store key.
func Normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Domain returns the part after '@', empty when the address has none.
func Domain(address string) string {
	at := strings.LastIndexByte(address, '@')
	if at < 0 || at == len(address)-1 {
		return ""
	}
	return strings.ToLower(address[at+1:])
}

// Validate returns false when the address is malformed, its domain is
// disposable, or the domain has no resolvable mail exchanger.
func (v *Validator) Validate(ctx context.Context, address string) bool {
	addr := Normalize(address)
	if _, err := mail.ParseAddress(addr); err != nil {
		return false
	}

	domain := Domain(addr)
	if domain == "" {
		return false
	}
	if _, denied := disposableDomains[domain]; denied {
		return false
	}
	if _, denied := v.extra[domain]; denied {
		return false
	}

	records, err := v.resolver.LookupMX(ctx, domain)
	if err != nil || len(records) == 0 {
		return false
	}
	return true
}
