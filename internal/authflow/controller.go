// Package authflow orchestrates the three-step authorization handshake:
// initiate, approve, and callback. It carries request context across the
// external provider redirect via the authstate codec, exchanges the
// returned one-time code, discovers the canonical user identity, and
// persists the resulting credential under both possible keys.
package authflow

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"tradegate/internal/authstate"
	"tradegate/internal/broker"
	"tradegate/internal/credstore"
	"tradegate/pkg/logging"
)

// ClientRegistry answers whether a requesting client already holds a valid
// approval, letting repeat connections skip the approval surface.
type ClientRegistry interface {
	HasValidApproval(ctx context.Context, clientID string) (bool, error)
}

// CodeExchanger redeems a one-time authorization code. The broker token
// manager satisfies it.
type CodeExchanger interface {
	ExchangeCode(ctx context.Context, code, rawState string) (*credstore.Record, error)
}

// IdentityResolver discovers the canonical user ID behind a freshly
// exchanged credential.
type IdentityResolver interface {
	ResolveUserID(ctx context.Context, record *credstore.Record) (string, error)
}

// ProviderGateway is the external authorization provider's surface: the
// consent redirect and the handshake completion that yields the final
// redirect target.
type ProviderGateway interface {
	AuthorizeURL(state string) string
	Complete(ctx context.Context, canonicalID, fallbackID, scope string) (string, error)
}

// Controller handles the authorization endpoints. One instance serves all
// sessions; it holds no per-request state (the state travels in the signed
// token).
type Controller struct {
	codec     *authstate.Codec
	store     *credstore.Store
	clients   ClientRegistry
	exchanger CodeExchanger
	identity  IdentityResolver
	provider  ProviderGateway
	scope     string
	redirect  string
	logger    *slog.Logger
}

// Config carries the controller's collaborators and flow parameters.
type Config struct {
	Codec       *authstate.Codec
	Store       *credstore.Store
	Clients     ClientRegistry
	Exchanger   CodeExchanger
	Identity    IdentityResolver
	Provider    ProviderGateway
	Scope       string
	RedirectURI string
	Logger      *slog.Logger
}

// NewController creates the authorization exchange controller.
func NewController(cfg Config) *Controller {
	return &Controller{
		codec:     cfg.Codec,
		store:     cfg.Store,
		clients:   cfg.Clients,
		exchanger: cfg.Exchanger,
		identity:  cfg.Identity,
		provider:  cfg.Provider,
		scope:     cfg.Scope,
		redirect:  cfg.RedirectURI,
		logger:    cfg.Logger,
	}
}

// HandleInitiate starts the handshake for a requesting client. Clients with
// a valid prior approval are redirected straight to the provider; everyone
// else sees the approval surface carrying the encoded pending state.
func (c *Controller) HandleInitiate(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		c.writeError(w, flowErr(CodeMissingClientID, http.StatusBadRequest,
			"client_id query parameter is required"))
		return
	}

	token, err := c.codec.Encode(authstate.PendingAuthorization{
		ClientID:    clientID,
		Scope:       c.scope,
		RedirectURI: c.redirect,
		Nonce:       authstate.NewNonce(),
		IssuedAt:    time.Now(),
	})
	if err != nil {
		c.writeError(w, classify(err))
		return
	}

	approved, err := c.clients.HasValidApproval(r.Context(), clientID)
	if err != nil {
		c.logger.Warn("approval lookup failed, falling back to approval page",
			"client", logging.TruncateSessionID(clientID), "error", err)
	}
	if approved {
		c.logger.Debug("client has prior approval, skipping approval page",
			"client", logging.TruncateSessionID(clientID))
		http.Redirect(w, r, c.provider.AuthorizeURL(token), http.StatusFound)
		return
	}

	c.renderApprovalPage(w, clientID, c.scope, token)
}

// HandleApprove accepts a submitted approval and redirects to the external
// provider. The submitted state must decode and carry every field the
// provider requires.
func (c *Controller) HandleApprove(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		c.writeError(w, flowErrFrom(CodeInvalidState, http.StatusBadRequest,
			"approval payload could not be parsed", err))
		return
	}

	token := r.FormValue("state")
	if token == "" {
		c.writeError(w, flowErr(CodeInvalidState, http.StatusBadRequest,
			"approval payload is missing its authorization state"))
		return
	}

	pending, err := c.codec.Decode(token)
	if err != nil {
		c.writeError(w, flowErrFrom(CodeInvalidState, http.StatusBadRequest,
			"authorization state is invalid", err))
		return
	}

	if pending.ClientID == "" || pending.Scope == "" || pending.RedirectURI == "" {
		c.writeError(w, flowErr(CodeInvalidState, http.StatusBadRequest,
			"authorization state is incomplete"))
		return
	}

	c.logger.Debug("approval accepted",
		"client", logging.TruncateSessionID(pending.ClientID), "scope", pending.Scope)
	http.Redirect(w, r, c.provider.AuthorizeURL(token), http.StatusFound)
}

// HandleCallback finishes the handshake when the provider redirects back:
// decode the state, exchange the code, discover the canonical user, persist
// the credential under both keys, and hand off to the provider's completion
// redirect. Every failure is caught here, classified, and returned as a
// structured JSON error; nothing propagates past this boundary.
func (c *Controller) HandleCallback(w http.ResponseWriter, r *http.Request) {
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		c.writeError(w, flowErr(CodeProviderAuthError, http.StatusBadRequest,
			"authorization provider reported: "+errParam))
		return
	}

	target, ferr := c.processCallback(r)
	if ferr != nil {
		c.writeError(w, ferr)
		return
	}

	http.Redirect(w, r, target, http.StatusFound)
}

// processCallback runs the callback steps in order, stopping at the first
// failed step. Returns the final redirect target.
func (c *Controller) processCallback(r *http.Request) (string, *FlowError) {
	ctx := r.Context()

	rawState, code, ferr := callbackParams(r)
	if ferr != nil {
		return "", ferr
	}

	pending, ferr := c.decodeState(rawState)
	if ferr != nil {
		return "", ferr
	}

	record, ferr := c.exchangeCode(ctx, code, rawState)
	if ferr != nil {
		return "", ferr
	}

	canonicalID, ferr := c.resolveIdentity(ctx, record)
	if ferr != nil {
		return "", ferr
	}

	c.persistDualKey(ctx, canonicalID, pending.ClientID, record)

	target, err := c.provider.Complete(ctx, canonicalID, pending.ClientID, pending.Scope)
	if err != nil {
		return "", classify(err)
	}

	c.logger.Info("authorization completed",
		"user", logging.TruncateSessionID(canonicalID),
		"client", logging.TruncateSessionID(pending.ClientID),
		"scope", pending.Scope)

	return target, nil
}

// callbackParams extracts the state and code query values. Missing either
// fails before any downstream call is made.
func callbackParams(r *http.Request) (rawState, code string, ferr *FlowError) {
	rawState = r.URL.Query().Get("state")
	code = r.URL.Query().Get("code")
	if rawState == "" || code == "" {
		return "", "", flowErr(CodeMissingParameters, http.StatusBadRequest,
			"state and code query parameters are required")
	}
	return rawState, code, nil
}

func (c *Controller) decodeState(rawState string) (*authstate.PendingAuthorization, *FlowError) {
	pending, err := c.codec.Decode(rawState)
	if err != nil {
		return nil, flowErrFrom(CodeInvalidOrExpiredState, http.StatusBadRequest,
			"authorization state is invalid or has expired", err)
	}
	return pending, nil
}

func (c *Controller) exchangeCode(ctx context.Context, code, rawState string) (*credstore.Record, *FlowError) {
	record, err := c.exchanger.ExchangeCode(ctx, code, rawState)
	if err != nil {
		// The underlying cause stays in the logs; the caller only learns
		// that the exchange failed.
		c.logger.Error("authorization code exchange failed", "error", err)
		return nil, flowErr(CodeTokenExchangeFailed, http.StatusBadGateway,
			"could not exchange authorization code")
	}
	return record, nil
}

// resolveIdentity looks up the canonical user ID with the fresh credential.
// An empty response and a failed lookup read the same: we cannot determine
// who this is.
func (c *Controller) resolveIdentity(ctx context.Context, record *credstore.Record) (string, *FlowError) {
	canonicalID, err := c.identity.ResolveUserID(ctx, record)
	if err != nil {
		c.logger.Error("identity lookup failed", "error", err)
		return "", flowErrFrom(CodeNoUserID, http.StatusBadGateway,
			"could not determine the authorized user", err)
	}
	if canonicalID == "" {
		return "", flowErr(CodeNoUserID, http.StatusBadGateway,
			"could not determine the authorized user")
	}
	return canonicalID, nil
}

// persistDualKey writes the credential under the canonical key and then,
// redundantly, under the fallback key, so a later session carrying either
// identifier alone resolves the same credential. Best-effort: the
// authorization already succeeded from the requester's point of view, so
// failures are logged and the flow continues. The two writes are not
// transactional; a crash between them leaves the fallback key stale until
// the next migration.
func (c *Controller) persistDualKey(ctx context.Context, canonicalID, fallbackID string, record *credstore.Record) {
	if err := c.store.Save(ctx, credstore.Identity{CanonicalID: canonicalID}, record); err != nil {
		c.logger.Warn("failed to persist credential under canonical key",
			"user", logging.TruncateSessionID(canonicalID), "error", err)
	}
	if err := c.store.Save(ctx, credstore.Identity{FallbackID: fallbackID}, record); err != nil {
		c.logger.Warn("failed to persist credential under fallback key",
			"client", logging.TruncateSessionID(fallbackID), "error", err)
	}
}

// writeError emits the structured JSON error response and logs a sanitized
// version. Raw secrets and full tokens never reach either output.
func (c *Controller) writeError(w http.ResponseWriter, ferr *FlowError) {
	c.logger.Warn("authorization flow error",
		"code", ferr.Code, "status", ferr.Status, "error", ferr.Error())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ferr.Status)

	resp := struct {
		Error       string `json:"error"`
		Description string `json:"error_description,omitempty"`
	}{
		Error:       ferr.Code,
		Description: ferr.Description,
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		c.logger.Warn("failed to write error response", "error", err)
	}
}

var _ CodeExchanger = (*broker.OAuthTokenManager)(nil)
