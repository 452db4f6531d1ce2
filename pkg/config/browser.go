package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/browsary/pkg/browser"
	"github.com/entrhq/browsary/pkg/security/urlpolicy"
)

const (
	// SectionIDBrowser is the identifier for the browser settings section
	SectionIDBrowser = "browser"

	// EnginePlaywright drives browsers through playwright-go
	EnginePlaywright = "playwright"

	// EngineRod drives Chromium through go-rod
	EngineRod = "rod"

	// DefaultPoolSize is the number of pooled browsers
	DefaultPoolSize = 2
)

// BrowserSection configures the browser engine and pool.
type BrowserSection struct {
	Engine           string
	Headless         bool
	PoolSize         int
	ViewportWidth    int
	ViewportHeight   int
	DefaultTimeoutMs int
	Stealth          bool
	AllowedHosts     []string
	DeniedHosts      []string
	mu               sync.RWMutex
}

// NewBrowserSection creates a browser section with default settings.
func NewBrowserSection() *BrowserSection {
	s := &BrowserSection{}
	s.reset()
	return s
}

func (s *BrowserSection) reset() {
	s.Engine = EnginePlaywright
	s.Headless = true
	s.PoolSize = DefaultPoolSize
	s.ViewportWidth = browser.DefaultViewportWidth
	s.ViewportHeight = browser.DefaultViewportHeight
	s.DefaultTimeoutMs = int(browser.DefaultTimeout.Milliseconds())
	s.Stealth = false
	s.AllowedHosts = nil
	s.DeniedHosts = nil
}

// ID returns the section identifier.
func (s *BrowserSection) ID() string {
	return SectionIDBrowser
}

// Title returns the section title.
func (s *BrowserSection) Title() string {
	return "Browser Settings"
}

// Description returns the section description.
func (s *BrowserSection) Description() string {
	return "Configure the browser engine (playwright or rod), the browser pool and which hosts goto may open."
}

// Data returns the current configuration data.
func (s *BrowserSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]interface{}{
		"engine":             s.Engine,
		"headless":           s.Headless,
		"pool_size":          s.PoolSize,
		"viewport_width":     s.ViewportWidth,
		"viewport_height":    s.ViewportHeight,
		"default_timeout_ms": s.DefaultTimeoutMs,
		"stealth":            s.Stealth,
		"allowed_hosts":      append([]string(nil), s.AllowedHosts...),
		"denied_hosts":       append([]string(nil), s.DeniedHosts...),
	}
}

// SetData updates the configuration from the provided data. Keys that are
// absent keep their current value.
func (s *BrowserSection) SetData(data map[string]interface{}) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := data["engine"]; ok {
		engine, isString := v.(string)
		if !isString {
			return fmt.Errorf("engine: unexpected type %T", v)
		}
		s.Engine = engine
	}

	bools := map[string]*bool{
		"headless": &s.Headless,
		"stealth":  &s.Stealth,
	}
	for key, dst := range bools {
		if v, ok := data[key]; ok {
			b, err := boolValue(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
	}

	ints := map[string]*int{
		"pool_size":          &s.PoolSize,
		"viewport_width":     &s.ViewportWidth,
		"viewport_height":    &s.ViewportHeight,
		"default_timeout_ms": &s.DefaultTimeoutMs,
	}
	for key, dst := range ints {
		if v, ok := data[key]; ok {
			n, err := intValue(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	lists := map[string]*[]string{
		"allowed_hosts": &s.AllowedHosts,
		"denied_hosts":  &s.DeniedHosts,
	}
	for key, dst := range lists {
		if v, ok := data[key]; ok && v != nil {
			l, err := stringList(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = l
		}
	}

	return nil
}

// Validate validates the current configuration.
func (s *BrowserSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch s.Engine {
	case EnginePlaywright, EngineRod:
	default:
		return fmt.Errorf("unknown engine %q (must be %s or %s)", s.Engine, EnginePlaywright, EngineRod)
	}
	if s.PoolSize < 1 {
		return fmt.Errorf("pool_size must be at least 1, got %d", s.PoolSize)
	}
	if err := s.viewport().Validate(); err != nil {
		return err
	}
	if s.DefaultTimeoutMs < 0 {
		return fmt.Errorf("default_timeout_ms cannot be negative, got %d", s.DefaultTimeoutMs)
	}
	if _, err := urlpolicy.New(s.navigationPolicy()); err != nil {
		return err
	}
	return nil
}

// Reset resets the section to default configuration.
func (s *BrowserSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

// Viewport returns the configured page viewport.
func (s *BrowserSection) Viewport() browser.Viewport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewport()
}

func (s *BrowserSection) viewport() browser.Viewport {
	return browser.Viewport{Width: s.ViewportWidth, Height: s.ViewportHeight}
}

// Timeout returns the default page operation timeout. Zero selects the
// backend default.
func (s *BrowserSection) Timeout() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.DefaultTimeoutMs <= 0 {
		return browser.DefaultTimeout
	}
	return time.Duration(s.DefaultTimeoutMs) * time.Millisecond
}

// NavigationPolicy returns the goto host policy.
func (s *BrowserSection) NavigationPolicy() urlpolicy.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.navigationPolicy()
}

func (s *BrowserSection) navigationPolicy() urlpolicy.Config {
	return urlpolicy.Config{
		Allowed: append([]string(nil), s.AllowedHosts...),
		Denied:  append([]string(nil), s.DeniedHosts...),
	}
}

// GetEngine returns the configured engine.
func (s *BrowserSection) GetEngine() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Engine
}

// GetPoolSize returns the configured pool size.
func (s *BrowserSection) GetPoolSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.PoolSize
}

// IsHeadless reports whether browsers run headless.
func (s *BrowserSection) IsHeadless() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Headless
}

// IsStealth reports whether rod pages use stealth evasions.
func (s *BrowserSection) IsStealth() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Stealth
}
