package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// SignedDecision is the claim shape a TokenVerifier expects on a
// signed out-of-band approval decision, e.g. one relayed through a
// webhook rather than answered in-process.
type SignedDecision struct {
	jwt.RegisteredClaims
	ToolUseID string `json:"tool_use_id"`
	Allow     bool   `json:"allow"`
	Reason    string `json:"reason,omitempty"`
}

// TokenVerifier verifies a signed approval decision against a JWKS
// endpoint before a Service trusts it. This sits off the hot path: most
// Service implementations resolve decisions in-process and never need
// it, but it gives an ApprovalService implementation a way to accept
// decisions relayed through an untrusted channel.
type TokenVerifier struct {
	jwks     *keyfunc.Keyfunc
	audience string
	issuer   string
}

// NewTokenVerifier fetches and caches the JWKS at jwksURL.
func NewTokenVerifier(ctx context.Context, jwksURL, audience, issuer string) (*TokenVerifier, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	k, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("approval: fetch jwks: %w", err)
	}
	return &TokenVerifier{jwks: k, audience: audience, issuer: issuer}, nil
}

// Verify parses and validates tokenString, returning the decision claims
// if the signature, audience, and issuer all check out.
func (v *TokenVerifier) Verify(tokenString string) (*SignedDecision, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SignedDecision{}, v.jwks.Keyfunc)
	if err != nil {
		return nil, fmt.Errorf("approval: parse signed decision: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("approval: signed decision failed validation")
	}
	claims, ok := token.Claims.(*SignedDecision)
	if !ok {
		return nil, fmt.Errorf("approval: unexpected claims type %T", token.Claims)
	}

	if v.audience != "" {
		aud, err := claims.GetAudience()
		if err != nil {
			return nil, fmt.Errorf("approval: read audience: %w", err)
		}
		ok := false
		for _, a := range aud {
			if a == v.audience {
				ok = true
				break
			}
		}
		if !ok {
			return nil, fmt.Errorf("approval: audience mismatch")
		}
	}
	if v.issuer != "" {
		iss, err := claims.GetIssuer()
		if err != nil {
			return nil, fmt.Errorf("approval: read issuer: %w", err)
		}
		if iss != v.issuer {
			return nil, fmt.Errorf("approval: issuer mismatch: got %q want %q", iss, v.issuer)
		}
	}

	return claims, nil
}
