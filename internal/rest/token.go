package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// TokenSource tells where an issued token came from. The backend has shipped
// several shapes over time; one precedence rule resolves them:
// header > body > locally generated placeholder.
type TokenSource int

const (
	TokenFromHeader TokenSource = iota
	TokenFromBody
	TokenGenerated
)

func (s TokenSource) String() string {
	switch s {
	case TokenFromHeader:
		return "header"
	case TokenFromBody:
		return "body"
	default:
		return "generated"
	}
}

// PostAuth performs an authentication POST and persists the issued bearer
// token into the durable store, marking the just-logged-in flag for the
// post-login silent refresh.
func (c *Client) PostAuth(ctx context.Context, path string, body any) (json.RawMessage, error) {
	data, hdr, err := c.doRetained(ctx, http.MethodPost, path, body, url.Values{})
	if err != nil {
		return nil, err
	}

	tok, src := resolveToken(hdr, data)
	exp := TokenExpiry(tok, c.tokTTL)
	if err := c.store.SaveToken(tok, exp); err != nil {
		return nil, err
	}
	if err := c.store.SetLoginFlag(time.Now()); err != nil {
		return nil, err
	}
	c.log.Debug("token persisted",
		zap.String("source", src.String()),
		zap.Time("expiresAt", exp),
	)
	return data, nil
}

// resolveToken applies the token precedence rule to an auth response.
func resolveToken(hdr http.Header, data json.RawMessage) (string, TokenSource) {
	if auth := hdr.Get("Authorization"); auth != "" {
		if tok := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer")); tok != "" {
			return tok, TokenFromHeader
		}
	}
	var side struct {
		AccessToken string `json:"accessToken"`
		Token       string `json:"token"`
	}
	if err := json.Unmarshal(data, &side); err == nil {
		if side.AccessToken != "" {
			return side.AccessToken, TokenFromBody
		}
		if side.Token != "" {
			return side.Token, TokenFromBody
		}
	}
	return placeholderToken(), TokenGenerated
}

// placeholderToken marks a session authenticated by cookie or other backend
// mechanism where no bearer token was issued.
func placeholderToken() string {
	id, err := uuid.NewV4()
	if err != nil {
		return "local-session"
	}
	return "local-" + id.String()
}

// TokenExpiry reads the exp claim when tok parses as a JWT; otherwise the
// fallback TTL from now applies.
func TokenExpiry(tok string, fallback time.Duration) time.Time {
	var claims jwt.RegisteredClaims
	_, _ = jwt.ParseWithClaims(tok, &claims, func(*jwt.Token) (any, error) { return nil, nil },
		jwt.WithoutClaimsValidation(),
	)
	if claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return time.Now().Add(fallback)
}
