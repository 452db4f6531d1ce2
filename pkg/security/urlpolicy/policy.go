// Package urlpolicy decides which URLs a browser session may navigate to.
//
// Hosts are matched against glob patterns where '*' stays within one DNS
// label and '**' spans several:
//
//	p, _ := urlpolicy.New(urlpolicy.Config{
//		Allowed: []string{"example.com", "*.example.com"},
//		Denied:  []string{"admin.example.com"},
//	})
//	err := p.Check(u) // wraps ErrBlocked when u is not reachable
package urlpolicy

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gobwas/glob"

	"github.com/entrhq/browsary/pkg/browser"
)

// ErrBlocked is returned for URLs the policy rejects. It wraps
// browser.ErrNavigation so callers treating navigation failures uniformly
// also see policy rejections.
var ErrBlocked = fmt.Errorf("%w: blocked by navigation policy", browser.ErrNavigation)

// Config lists host patterns. Denied patterns take precedence. An empty
// Allowed list admits every host that is not denied.
type Config struct {
	Allowed []string `json:"allowed_hosts,omitempty" yaml:"allowed_hosts,omitempty"`
	Denied  []string `json:"denied_hosts,omitempty" yaml:"denied_hosts,omitempty"`

	// Schemes restricts URL schemes. Defaults to http, https, about and data.
	Schemes []string `json:"schemes,omitempty" yaml:"schemes,omitempty"`
}

// Policy is a compiled navigation policy. The zero value is not usable;
// construct one with New.
type Policy struct {
	allowed []glob.Glob
	denied  []glob.Glob
	schemes map[string]bool
}

var defaultSchemes = []string{"http", "https", "about", "data"}

// New compiles cfg into a Policy.
func New(cfg Config) (*Policy, error) {
	p := &Policy{schemes: make(map[string]bool)}

	for _, pattern := range cfg.Allowed {
		g, err := compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid allowed pattern '%s': %w", pattern, err)
		}
		p.allowed = append(p.allowed, g)
	}

	for _, pattern := range cfg.Denied {
		g, err := compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid denied pattern '%s': %w", pattern, err)
		}
		p.denied = append(p.denied, g)
	}

	schemes := cfg.Schemes
	if len(schemes) == 0 {
		schemes = defaultSchemes
	}
	for _, s := range schemes {
		p.schemes[strings.ToLower(s)] = true
	}

	return p, nil
}

func compile(pattern string) (glob.Glob, error) {
	return glob.Compile(strings.ToLower(strings.TrimSpace(pattern)), '.')
}

// Check returns nil when u may be visited.
func (p *Policy) Check(u *url.URL) error {
	if u == nil {
		return fmt.Errorf("%w: empty URL", ErrBlocked)
	}

	scheme := strings.ToLower(u.Scheme)
	if !p.schemes[scheme] {
		return fmt.Errorf("%w: scheme %q is not allowed", ErrBlocked, u.Scheme)
	}

	// Opaque URLs such as about:blank have no host to match
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil
	}

	if !p.AllowsHost(host) {
		return fmt.Errorf("%w: host %q", ErrBlocked, host)
	}
	return nil
}

// AllowsHost reports whether host passes the allow and deny lists.
func (p *Policy) AllowsHost(host string) bool {
	host = strings.ToLower(host)

	// Denied patterns take precedence
	for _, g := range p.denied {
		if g.Match(host) {
			return false
		}
	}

	// If no allowed patterns specified, allow all (except denied)
	if len(p.allowed) == 0 {
		return true
	}

	for _, g := range p.allowed {
		if g.Match(host) {
			return true
		}
	}
	return false
}
