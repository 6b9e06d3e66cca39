package ops

import (
	"context"
	"fmt"

	"github.com/kmori/shotpipe/internal/config"
	"github.com/kmori/shotpipe/internal/flow"
	"github.com/kmori/shotpipe/internal/session"
)

// LoginInput contains credentials for the Login operation. Empty fields
// fall back to the configured (env/file) values.
type LoginInput struct {
	SiteURL    string
	AuthMethod string
	Login      string
	Password   string
	ScriptName string
	APIKey     string
}

// LoginOutput contains the result of the Login operation.
type LoginOutput struct {
	Identity session.Identity `json:"-"`
	Session  flow.Session     `json:"-"`
	SiteURL  string           `json:"site_url"`
	UserName string           `json:"user_name"`
	Cached   bool             `json:"cached"`
	Status   string           `json:"status"`
}

// ResolveCredentials merges input over configured defaults.
func (in LoginInput) ResolveCredentials(cfg *config.Config) (string, flow.Credentials) {
	fc := cfg.Flow
	site := in.SiteURL
	if site == "" {
		site = fc.SiteURL
	}
	creds := flow.Credentials{
		Method:     in.AuthMethod,
		Login:      in.Login,
		Password:   in.Password,
		ScriptName: in.ScriptName,
		APIKey:     in.APIKey,
	}
	if creds.Method == "" {
		creds.Method = fc.AuthMethod
	}
	if creds.Login == "" {
		creds.Login = fc.Login
	}
	if creds.Password == "" {
		creds.Password = fc.Password
	}
	if creds.ScriptName == "" {
		creds.ScriptName = fc.ScriptName
	}
	if creds.APIKey == "" {
		creds.APIKey = fc.APIKey
	}
	return site, creds
}

// Login connects (or reuses a cached connection) to the site and resolves
// the display name for the authenticated principal.
func Login(ctx context.Context, cache *session.Cache, cfg *config.Config, input LoginInput) (*LoginOutput, error) {
	site, creds := input.ResolveCredentials(cfg)

	sess, cached, err := cache.Connect(ctx, site, creds)
	if err != nil {
		return nil, err
	}

	userName := creds.Name()
	if creds.Method == config.AuthUser {
		// Resolve the human-readable name; the login itself is a fine
		// fallback when the lookup fails or returns nothing.
		if user, err := sess.FindOne(ctx, flow.EntityUser,
			[]flow.Filter{flow.Eq("login", creds.Login)}, userFields); err == nil && user != nil {
			if name := user.Str("name"); name != "" {
				userName = name
			}
		}
	}

	status := fmt.Sprintf("Connected: %s", site)
	if cached {
		status = fmt.Sprintf("Connected (cached): %s", site)
	}

	return &LoginOutput{
		Identity: session.IdentityFor(site, creds),
		Session:  sess,
		SiteURL:  site,
		UserName: userName,
		Cached:   cached,
		Status:   status,
	}, nil
}
