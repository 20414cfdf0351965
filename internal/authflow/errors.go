package authflow

import (
	"errors"
	"fmt"
	"net/http"

	"tradegate/internal/authstate"
	"tradegate/internal/broker"
)

// Error codes returned by the authorization endpoints. These are the wire
// values of the flow's error taxonomy; each maps to exactly one HTTP status.
const (
	CodeMissingClientID       = "missing_client_id"
	CodeInvalidState          = "invalid_state"
	CodeInvalidOrExpiredState = "invalid_or_expired_state"
	CodeMissingParameters     = "missing_parameters"
	CodeTokenExchangeFailed   = "token_exchange_failed"
	CodeNoUserID              = "no_user_id"
	CodeAPIResponseError      = "api_response_error"
	CodeProviderAuthError     = "provider_auth_error"
	CodeUnknownError          = "unknown_error"
)

// FlowError is one handshake step's failure: a stable code, the HTTP status
// it maps to, a caller-safe description, and the underlying cause (logged,
// never serialized). Each step of the handshake returns a *FlowError instead
// of branching on exception identity; the endpoint boundary combines them
// into one structured JSON response.
type FlowError struct {
	Code        string
	Status      int
	Description string
	Err         error
}

func (e *FlowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Description)
	}
	return e.Code
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

func flowErr(code string, status int, description string) *FlowError {
	return &FlowError{Code: code, Status: status, Description: description}
}

func flowErrFrom(code string, status int, description string, cause error) *FlowError {
	return &FlowError{Code: code, Status: status, Description: description, Err: cause}
}

// classify maps any error escaping the handshake steps to a FlowError:
// flow errors pass through, codec failures read as invalid state, brokerage
// API failures as api_response_error, and everything else as unknown. The
// callback endpoint never lets an unclassified error cross its boundary.
func classify(err error) *FlowError {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe
	}

	if errors.Is(err, authstate.ErrInvalidOrExpiredState) {
		return flowErrFrom(CodeInvalidOrExpiredState, http.StatusBadRequest,
			"authorization state is invalid or has expired", err)
	}

	var apiErr *broker.APIError
	if errors.As(err, &apiErr) {
		return flowErrFrom(CodeAPIResponseError, http.StatusBadGateway,
			"brokerage API request failed", err)
	}

	return flowErrFrom(CodeUnknownError, http.StatusInternalServerError,
		"authorization failed", err)
}
