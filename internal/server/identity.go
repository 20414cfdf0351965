package server

import (
	"context"
	"log/slog"
	"net/http"

	"tradegate/internal/authflow"
	"tradegate/internal/broker"
	"tradegate/internal/credstore"
)

// identityResolver discovers the canonical user ID behind a freshly
// exchanged credential by asking the brokerage who it belongs to. It uses
// a static token provider: at this point in the flow no token manager
// owns the credential yet.
type identityResolver struct {
	apiBaseURL string
	httpClient *http.Client
	logger     *slog.Logger
}

func newIdentityResolver(apiBaseURL string, httpClient *http.Client, logger *slog.Logger) *identityResolver {
	return &identityResolver{
		apiBaseURL: apiBaseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// ResolveUserID implements authflow.IdentityResolver.
func (r *identityResolver) ResolveUserID(ctx context.Context, record *credstore.Record) (string, error) {
	client := broker.NewClient(r.apiBaseURL, broker.StaticToken(record), r.httpClient, r.logger)

	principal, err := client.GetUserPrincipal(ctx)
	if err != nil {
		return "", err
	}
	return principal.UserID, nil
}

var _ authflow.IdentityResolver = (*identityResolver)(nil)

// recordingProvider wraps the provider gateway and records a client
// approval once the handshake completes, so the client's next initiate
// skips the approval page.
type recordingProvider struct {
	authflow.ProviderGateway
	approvals *Approvals
}

func (p *recordingProvider) Complete(ctx context.Context, canonicalID, fallbackID, scope string) (string, error) {
	target, err := p.ProviderGateway.Complete(ctx, canonicalID, fallbackID, scope)
	if err != nil {
		return "", err
	}
	p.approvals.Record(fallbackID)
	return target, nil
}
