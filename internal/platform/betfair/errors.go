package betfair

import (
	"fmt"

	"github.com/alanyoungcy/laybot/internal/domain"
)

// APIError is a JSON-RPC error returned by the exchange.
type APIError struct {
	Method    string
	Code      int
	Message   string
	ErrorCode string // e.g. INVALID_SESSION_INFORMATION
	Details   string
}

func (e *APIError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("betfair: %s: %s (%s)", e.Method, e.ErrorCode, e.Details)
	}
	return fmt.Sprintf("betfair: %s: %s (code %d)", e.Method, e.Message, e.Code)
}

// Is maps exchange error codes onto domain sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case domain.ErrUnauthorized:
		switch e.ErrorCode {
		case "INVALID_SESSION_INFORMATION", "NO_SESSION", "INVALID_APP_KEY", "NO_APP_KEY":
			return true
		}
	case domain.ErrRateLimited:
		return e.ErrorCode == "TOO_MANY_REQUESTS"
	}
	return false
}

func newAPIError(method string, re *rpcError) *APIError {
	ae := &APIError{Method: method, Code: re.Code, Message: re.Message}
	switch {
	case re.Data.APINGException != nil:
		ae.ErrorCode = re.Data.APINGException.ErrorCode
		ae.Details = re.Data.APINGException.ErrorDetails
	case re.Data.AccountAPINGException != nil:
		ae.ErrorCode = re.Data.AccountAPINGException.ErrorCode
		ae.Details = re.Data.AccountAPINGException.ErrorDetails
	}
	return ae
}
