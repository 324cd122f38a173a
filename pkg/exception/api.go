package exception

import (
	"errors"
	"fmt"
)

// APIKind classifies a venue error code.
type APIKind uint8

const (
	APIKindGeneric APIKind = iota
	APIKindOrderNotFound
	APIKindInsufficientBalance
	APIKindShouldRetry
	APIKindNotAllowed
	APIKindIncorrectParams
	APIKindMarginBalance
)

func (k APIKind) String() string {
	switch k {
	case APIKindOrderNotFound:
		return "order_not_found"
	case APIKindInsufficientBalance:
		return "insufficient_balance"
	case APIKindShouldRetry:
		return "should_retry"
	case APIKindNotAllowed:
		return "not_allowed"
	case APIKindIncorrectParams:
		return "incorrect_params"
	case APIKindMarginBalance:
		return "margin_balance"
	default:
		return "generic"
	}
}

// Venue errors, matched with errors.Is against an *APIError.
var (
	ErrAPI                 = errors.New("rest: api error")
	ErrOrderNotFound       = errors.New("rest: order not found")
	ErrInsufficientBalance = errors.New("rest: insufficient balance")
	ErrShouldRetry         = errors.New("rest: asset shortage, retry later")
	ErrNotAllowed          = errors.New("rest: trading not allowed")
	ErrIncorrectParams     = errors.New("rest: incorrect parameters")
	ErrMarginBalance       = errors.New("rest: margin balance insufficient")
	ErrHalt                = errors.New("rest: api key or permission revoked")
)

// CodeHalt marks an invalid api key, ip or permission. Trading must stop.
const CodeHalt = -2015

var _codeKinds = map[int]APIKind{
	-2011:  APIKindOrderNotFound,
	-2010:  APIKindInsufficientBalance,
	-3045:  APIKindShouldRetry,
	-3021:  APIKindNotAllowed,
	-11001: APIKindNotAllowed,
	-3027:  APIKindNotAllowed,
	-1104:  APIKindIncorrectParams,
	-1102:  APIKindIncorrectParams,
	-1013:  APIKindIncorrectParams,
	-1111:  APIKindIncorrectParams,
	-3006:  APIKindMarginBalance,
}

// KindOf returns the kind of a venue error code.
func KindOf(code int) APIKind {
	if kind, ok := _codeKinds[code]; ok {
		return kind
	}
	return APIKindGeneric
}

// APIError is a non-success response from the venue.
type APIError struct {
	Status  int
	Code    int
	Message string
	URL     string
	Kind    APIKind
}

// NewAPIError builds an APIError and classifies its code.
func NewAPIError(status, code int, message, url string) *APIError {
	return &APIError{
		Status:  status,
		Code:    code,
		Message: message,
		URL:     url,
		Kind:    KindOf(code),
	}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("rest: api error, status: %d, code: %d, msg: %s, url: %s", e.Status, e.Code, e.Message, e.URL)
}

// Halt reports whether all trading on the account must stop.
func (e *APIError) Halt() bool {
	return e.Code == CodeHalt
}

// Retryable reports whether the same request may succeed later.
// Not-allowed errors are a narrower case of retry.
func (e *APIError) Retryable() bool {
	return e.Kind == APIKindShouldRetry || e.Kind == APIKindNotAllowed
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrAPI:
		return true
	case ErrHalt:
		return e.Halt()
	case ErrOrderNotFound:
		return e.Kind == APIKindOrderNotFound
	case ErrInsufficientBalance:
		return e.Kind == APIKindInsufficientBalance
	case ErrShouldRetry:
		return e.Retryable()
	case ErrNotAllowed:
		return e.Kind == APIKindNotAllowed
	case ErrIncorrectParams:
		return e.Kind == APIKindIncorrectParams
	case ErrMarginBalance:
		return e.Kind == APIKindMarginBalance
	}
	return false
}
