// Package oauthclient implements the OAuth2 refresh-token grant against
// Google's token endpoint and the loadCodeAssist project-ID discovery
// call, satisfying the pool.Refresher and pool.ProjectResolver
// interfaces consumed by the rotator.
package oauthclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/antigravity-gateway/gateway/internal/config"
	"github.com/antigravity-gateway/gateway/internal/credential"
	"github.com/antigravity-gateway/gateway/internal/gwerrors"
	"github.com/antigravity-gateway/gateway/internal/resilience"
)

const (
	codeAssistEndpoint = "https://cloudcode-pa.googleapis.com"
	codeAssistVersion  = "v1internal"
)

var oauthScopes = []string{
	"https://www.googleapis.com/auth/cloud-platform",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

// Client implements pool.Refresher and pool.ProjectResolver against the
// real Google OAuth2 and code-assist endpoints.
type Client struct {
	oauth      *oauth2.Config
	httpClient *http.Client
	log        *slog.Logger
}

// New builds a Client from the configured OAuth client ID/secret.
func New(cfg *config.Config, log *slog.Logger) *Client {
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.OAuth.ID,
			ClientSecret: cfg.OAuth.Secret,
			Scopes:       oauthScopes,
			Endpoint:     google.Endpoint,
		},
		httpClient: &http.Client{Transport: resilience.SharedTransport(), Timeout: 30 * time.Second},
		log:        log,
	}
}

// Refresh runs the OAuth2 refresh-token grant and writes the new access
// token/expiry back onto c.
func (cl *Client) Refresh(ctx context.Context, c *credential.Credential) error {
	ctxClient := context.WithValue(ctx, oauth2.HTTPClient, cl.httpClient)
	src := cl.oauth.TokenSource(ctxClient, &oauth2.Token{RefreshToken: c.RefreshToken})

	tok, err := src.Token()
	if err != nil {
		return wrapTokenErr(err)
	}

	c.AccessToken = tok.AccessToken
	c.Timestamp = time.Now().UnixMilli()
	if !tok.Expiry.IsZero() {
		c.ExpiresIn = int64(time.Until(tok.Expiry).Seconds())
	} else {
		c.ExpiresIn = 3600
	}
	return nil
}

// ResolveProjectID discovers the upstream cloudaicompanion project via
// loadCodeAssist. A credential with no discoverable project is treated
// as ineligible rather than as a hard error — callers should disable it.
func (cl *Client) ResolveProjectID(ctx context.Context, c *credential.Credential) (string, bool, error) {
	body := map[string]any{
		"metadata": map[string]any{
			"ideType":    "IDE_UNSPECIFIED",
			"platform":   "PLATFORM_UNSPECIFIED",
			"pluginType": "GEMINI",
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", false, gwerrors.New(0, "encode_error", err.Error())
	}

	url := codeAssistEndpoint + "/" + codeAssistVersion + ":loadCodeAssist"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", false, gwerrors.New(0, "request_error", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	req.Header.Set("User-Agent", "google-api-nodejs-client/9.15.1")

	resp, err := cl.httpClient.Do(req)
	if err != nil {
		return "", false, gwerrors.New(0, "transport_error", err.Error())
	}
	defer resp.Body.Close()

	var out struct {
		CloudaicompanionProject string `json:"cloudaicompanionProject"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", false, gwerrors.New(resp.StatusCode, "parse_error", err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if cl.log != nil {
			cl.log.Warn("loadCodeAssist non-2xx", "status", resp.StatusCode)
		}
		return "", false, nil
	}
	if out.CloudaicompanionProject == "" {
		return "", false, nil
	}
	return out.CloudaicompanionProject, true, nil
}

func wrapTokenErr(err error) error {
	return gwerrors.New(http.StatusUnauthorized, "refresh_failed", fmt.Sprintf("oauth refresh: %v", err))
}
