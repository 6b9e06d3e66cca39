// Package session maintains live connections to production-tracking sites.
// Connections are cached per identity key so repeat node invocations do not
// re-authenticate. The cache is an injected object with a lifecycle, not
// ambient global state. It is unbounded and has no expiry; stale entries
// are caught by the liveness probe on the next use.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kmori/shotpipe/internal/config"
	"github.com/kmori/shotpipe/internal/errors"
	"github.com/kmori/shotpipe/internal/flow"
)

// Identity distinguishes cached connections: site URL, auth method, and the
// credential name (login for user auth, script name for script auth).
type Identity struct {
	Site       string
	Method     string
	Credential string
}

// Key returns the cache key "site:method:credential".
func (i Identity) Key() string {
	return i.Site + ":" + i.Method + ":" + i.Credential
}

// IdentityFor builds the identity for a site and credentials pair.
func IdentityFor(site string, creds flow.Credentials) Identity {
	return Identity{Site: site, Method: creds.Method, Credential: creds.Name()}
}

// DialFunc creates a new (unprobed) session. Injected so tests can supply
// fakes instead of HTTP clients.
type DialFunc func(site string, creds flow.Credentials) flow.Session

// DefaultDial dials a real HTTP client with the given timeout.
func DefaultDial(timeout time.Duration) DialFunc {
	return func(site string, creds flow.Credentials) flow.Session {
		return flow.New(site, creds, timeout)
	}
}

// Cache is a mutex-guarded mapping from identity key to live session.
type Cache struct {
	mu    sync.Mutex
	conns map[string]flow.Session
	dial  DialFunc
	log   *slog.Logger
}

// NewCache creates an empty cache.
func NewCache(dial DialFunc, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{
		conns: make(map[string]flow.Session),
		dial:  dial,
		log:   log,
	}
}

// Connect returns a live session for the identity derived from site and
// creds. Cache hits are probed; a probe failure evicts the entry and
// triggers exactly one reconnect attempt. The second return reports whether
// the returned session came from the cache.
func (c *Cache) Connect(ctx context.Context, site string, creds flow.Credentials) (flow.Session, bool, error) {
	if site == "" {
		return nil, false, errors.NewInvalidRequest("No site URL provided")
	}
	switch creds.Method {
	case config.AuthUser:
		if creds.Login == "" || creds.Password == "" {
			return nil, false, errors.NewAuthFailed("Login and password required")
		}
	case config.AuthScript:
		if creds.APIKey == "" {
			return nil, false, errors.NewAuthFailed("No API key provided")
		}
	default:
		return nil, false, errors.NewInvalidRequest("unknown auth method: " + creds.Method)
	}

	key := IdentityFor(site, creds).Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	if sess, ok := c.conns[key]; ok {
		if err := probe(ctx, sess); err == nil {
			return sess, true, nil
		}
		c.log.Warn("cached session failed liveness probe, reconnecting", "key", key)
		delete(c.conns, key)
	}

	sess := c.dial(site, creds)
	if err := probe(ctx, sess); err != nil {
		if flow.IsAuthFault(err) {
			return nil, false, errors.NewAuthFailed("Invalid credentials")
		}
		return nil, false, errors.NewRemote(err)
	}
	c.conns[key] = sess
	c.log.Info("connected", "site", site, "method", creds.Method)
	return sess, false, nil
}

// Lookup returns the cached session for an identity without probing or
// dialing. Used by surfaces that require an existing login.
func (c *Cache) Lookup(id Identity) (flow.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess, ok := c.conns[id.Key()]
	return sess, ok
}

// Evict drops the cached connection for an identity, if any. Used by
// logout; the next Connect for the identity dials fresh.
func (c *Cache) Evict(id Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.conns, id.Key())
}

// Len returns the number of cached connections.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.conns)
}

// Close drops all cached connections. The cache remains usable; Close
// exists so owners can scope its lifetime explicitly.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns = make(map[string]flow.Session)
	return nil
}

// probe performs the cheap liveness check: one single-record project read.
func probe(ctx context.Context, s flow.Session) error {
	_, err := s.FindOne(ctx, flow.EntityProject, nil, []string{"name"})
	return err
}
