package response

import "errors"

type Response struct {
	ResponseError `json:"error,omitzero"`
}

type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error Codes
type ErrCode string

var (
	FAILED_REQUEST   ErrCode = "REQUEST_FAILED"
	BAD_REQUEST      ErrCode = "FAILED_TO_DECODE"
	VALIDATION       ErrCode = "VALIDATION_FAILED"
	NOT_FOUND        ErrCode = "NOT_FOUND"
	LOCKED           ErrCode = "LOCKED"
	CONFLICT         ErrCode = "CONFLICT"
	POLICY_VIOLATION ErrCode = "POLICY_VIOLATION"
	UNAVAILABLE      ErrCode = "SERVICE_UNAVAILABLE"
)

var (
	ErrBadRequest = errors.New("bad request")
	// ErrValidation: malformed input (bad date/time, end<=start, missing contact).
	// Never retried.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound: unknown tenant, service, template or booking reference.
	ErrNotFound = errors.New("resource not found")
	// ErrLocked: another request holds the contention key right now.
	ErrLocked = errors.New("resource is locked")
	// ErrConflict: the slot lost its capacity between quote and commit.
	// The caller should re-query availability rather than retry blindly.
	ErrConflict = errors.New("slot is no longer available")
	// ErrPolicyViolation: guard window, notice/advance bounds, or a missing
	// required provider selection.
	ErrPolicyViolation = errors.New("booking policy violation")
	// ErrUnavailable: the store kept failing transiently after bounded retries.
	ErrUnavailable = errors.New("service unavailable")
)

func Error(code, msg string) Response {
	return Response{
		ResponseError: ResponseError{
			Code:    code,
			Message: msg,
		},
	}
}
