// Package middleware contains HTTP middleware for the master API.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/YangYuS8/mlsmanager/internal/store"
	"github.com/YangYuS8/mlsmanager/pkg/api"
)

// AgentTokenHeader carries the agent credential on worker calls.
const AgentTokenHeader = "X-Agent-Token"

type agentNodeKey struct{}

// CredentialVerifier checks an agent credential and returns the node_id
// it was issued for.
type CredentialVerifier interface {
	Verify(credential string) (string, bool)
}

// NodeLookup resolves a node_id to its node record.
type NodeLookup interface {
	GetNodeByNodeID(ctx context.Context, nodeID string) (*store.Node, error)
}

// AgentAuth validates the agent credential on worker-facing endpoints.
// When the route carries a {node_id} path segment the credential must
// have been issued for that exact node. The resolved node record is
// attached to the request context.
func AgentAuth(verifier CredentialVerifier, nodes NodeLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential := r.Header.Get(AgentTokenHeader)
			if credential == "" {
				unauthorized(w)
				return
			}

			nodeID, ok := verifier.Verify(credential)
			if !ok {
				unauthorized(w)
				return
			}

			if pathNode := r.PathValue("node_id"); pathNode != "" && pathNode != nodeID {
				unauthorized(w)
				return
			}

			node, err := nodes.GetNodeByNodeID(r.Context(), nodeID)
			if err != nil {
				// a valid credential for a node we no longer know about
				// is treated the same as an invalid one
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), agentNodeKey{}, node)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewContextWithAgentNode attaches a node record as the authenticated
// agent. Used by handler tests.
func NewContextWithAgentNode(ctx context.Context, n *store.Node) context.Context {
	return context.WithValue(ctx, agentNodeKey{}, n)
}

// AgentNodeFromContext returns the authenticated agent's node record.
func AgentNodeFromContext(ctx context.Context) (*store.Node, bool) {
	n, ok := ctx.Value(agentNodeKey{}).(*store.Node)
	return n, ok
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(api.ErrorResponse{Error: "Unauthorized", Code: "401"})
}
