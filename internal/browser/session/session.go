// internal/browser/session/session.go
package session

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/xkilldash9x/steadyhand/internal/browser"
	"github.com/xkilldash9x/steadyhand/internal/browser/capabilities"
)

// Operating limits applied to every session once the browser is up.
const (
	ImplicitWait    = 20 * time.Second
	ScriptTimeout   = 2 * time.Minute
	PageLoadTimeout = 10 * time.Second
)

// DefaultTimeouts bundles the operating limits.
var DefaultTimeouts = browser.Timeouts{
	ImplicitWait: ImplicitWait,
	Script:       ScriptTimeout,
	PageLoad:     PageLoadTimeout,
}

// Session is one live browser bound to a worker.
type Session struct {
	ID        string
	Kind      browser.Kind
	Mode      browser.Mode
	Caps      capabilities.Set
	Service   DriverService
	Driver    browser.Driver
	CreatedAt time.Time

	mu           sync.Mutex
	subscription browser.Subscription
}

// Subscribed reports whether console records are pushed to the router.
func (s *Session) Subscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscription != nil
}

func (s *Session) setSubscription(sub browser.Subscription) {
	s.mu.Lock()
	s.subscription = sub
	s.mu.Unlock()
}

// takeSubscription clears and returns the subscription.
func (s *Session) takeSubscription() browser.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := s.subscription
	s.subscription = nil
	return sub
}

var remoteSchemes = map[string]bool{"http": true, "https": true, "ws": true, "wss": true}

// validateRemoteURL accepts absolute http(s) and ws(s) URLs with a host.
func validateRemoteURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", browser.ErrInvalidRemoteURL, raw, err)
	}
	if !u.IsAbs() || !remoteSchemes[strings.ToLower(u.Scheme)] || u.Hostname() == "" {
		return nil, fmt.Errorf("%w: %q", browser.ErrInvalidRemoteURL, raw)
	}
	return u, nil
}
