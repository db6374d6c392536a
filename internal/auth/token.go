// Package auth issues and verifies agent credentials.
//
// An agent credential is a signed token binding a worker process to a
// node_id. It is minted once at registration with a long validity window
// and verified by signature on every agent-originated call, so no
// per-request secret lookup is needed.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const agentKind = "agent"

// DefaultTTL is the validity window for agent credentials. Agents re-register
// on rejection, so expiry is a cleanup bound rather than a rotation scheme.
const DefaultTTL = 365 * 24 * time.Hour

type agentClaims struct {
	Kind   string `json:"kind"`
	NodeID string `json:"node_id"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies agent credentials with a symmetric key
// shared process-wide.
type TokenIssuer struct {
	key []byte
	ttl time.Duration
}

// NewTokenIssuer creates an issuer with the given signing secret.
func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{key: []byte(secret), ttl: DefaultTTL}
}

// Issue signs a credential for the given node_id.
func (i *TokenIssuer) Issue(nodeID string) (string, error) {
	now := time.Now()
	claims := agentClaims{
		Kind:   agentKind,
		NodeID: nodeID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "agent:" + nodeID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("sign agent token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature, expiry and kind of a credential and returns
// the embedded node_id. Malformed, expired and mis-signed tokens are all
// reported the same way so callers cannot be used as a validity oracle.
func (i *TokenIssuer) Verify(credential string) (string, bool) {
	var claims agentClaims
	token, err := jwt.ParseWithClaims(credential, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.key, nil
	})
	if err != nil || !token.Valid {
		return "", false
	}
	if claims.Kind != agentKind || claims.NodeID == "" {
		return "", false
	}
	return claims.NodeID, true
}
