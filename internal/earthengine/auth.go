package earthengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/jwt"
)

type serviceAccount struct {
	ClientEmail  string `json:"client_email"`
	PrivateKey   string `json:"private_key"`
	PrivateKeyID string `json:"private_key_id"`
	TokenURI     string `json:"token_uri"`
}

func (c *Client) tokenKey() string {
	identity := c.opts.ClientID
	if c.opts.ServiceAccountFile != "" {
		identity = c.opts.ServiceAccountFile
	}
	return c.tokens.Key("earthengine", identity, c.opts.TokenURL)
}

// cachedTokenSource only yields a still valid token from the cache.
func (c *Client) cachedTokenSource() oauth2.TokenSource {
	return tokenSourceFunc(func() (*oauth2.Token, error) {
		tok, ok := c.tokens.Get(c.tokenKey())
		if !ok {
			return nil, errors.New("no cached credentials")
		}
		if !tok.Valid() {
			return nil, errors.New("cached credentials expired")
		}
		return &tok, nil
	})
}

// refreshingTokenSource authenticates on first use and caches every token it
// hands out. It backs cached tokens once they expire during a run.
func (c *Client) refreshingTokenSource(ctx context.Context) oauth2.TokenSource {
	var (
		mu sync.Mutex
		ts oauth2.TokenSource
	)
	return tokenSourceFunc(func() (*oauth2.Token, error) {
		mu.Lock()
		defer mu.Unlock()
		if ts == nil {
			src, err := c.authenticate(ctx)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
			}
			ts = src
		}
		tok, err := ts.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
		}
		if err := c.tokens.Set(c.tokenKey(), *tok); err != nil {
			c.log.WithError(err).Warn("failed to cache token")
		}
		c.log.Debug("earth engine token refreshed")
		return tok, nil
	})
}

type tokenSourceFunc func() (*oauth2.Token, error)

func (f tokenSourceFunc) Token() (*oauth2.Token, error) {
	return f()
}

// authenticate builds a token source from a service account key file when
// one is configured, from client credentials otherwise.
func (c *Client) authenticate(ctx context.Context) (oauth2.TokenSource, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.base)

	if c.opts.ServiceAccountFile != "" {
		data, err := os.ReadFile(c.opts.ServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read service account file: %w", err)
		}
		var sa serviceAccount
		if err := json.Unmarshal(data, &sa); err != nil {
			return nil, fmt.Errorf("failed to parse service account file: %w", err)
		}
		if sa.ClientEmail == "" || sa.PrivateKey == "" {
			return nil, fmt.Errorf("service account file misses client_email or private_key")
		}
		tokenURL := c.opts.TokenURL
		if tokenURL == "" {
			tokenURL = sa.TokenURI
		}
		config := &jwt.Config{
			Email:        sa.ClientEmail,
			PrivateKey:   []byte(sa.PrivateKey),
			PrivateKeyID: sa.PrivateKeyID,
			TokenURL:     tokenURL,
			Scopes:       []string{Scope},
		}
		return config.TokenSource(ctx), nil
	}

	if c.opts.ClientID == "" || c.opts.ClientSecret == "" || c.opts.TokenURL == "" {
		return nil, fmt.Errorf("missing required environment variables: EE_SERVICE_ACCOUNT_FILE or EE_CLIENT_ID, EE_CLIENT_SECRET and EE_TOKEN_URL")
	}
	config := &clientcredentials.Config{
		ClientID:     c.opts.ClientID,
		ClientSecret: c.opts.ClientSecret,
		TokenURL:     c.opts.TokenURL,
		Scopes:       []string{Scope},
	}
	return config.TokenSource(ctx), nil
}
