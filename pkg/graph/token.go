package graph

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const loginBaseURL = "https://login.microsoftonline.com"

// NewTokenSource builds an app-only token source for the tenant using the
// OAuth2 client credentials flow.
func NewTokenSource(ctx context.Context, tenantID, clientID, clientSecret string) oauth2.TokenSource {
	cc := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     fmt.Sprintf("%s/%s/oauth2/v2.0/token", loginBaseURL, tenantID),
		Scopes:       []string{"https://graph.microsoft.com/.default"},
	}
	return cc.TokenSource(ctx)
}

// requestTimeout bounds every Graph call. A hung remote call would otherwise
// stall a sync run indefinitely.
const requestTimeout = 30 * time.Second

// NewHTTPClient wraps the default transport with automatic bearer token
// injection and refresh.
func NewHTTPClient(ctx context.Context, ts oauth2.TokenSource) *http.Client {
	c := oauth2.NewClient(ctx, ts)
	c.Timeout = requestTimeout
	return c
}
