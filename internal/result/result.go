// Package result defines the uniform envelope every lookup returns, so callers
// never have to distinguish between cache hits, upstream data and upstream
// failures by inspecting Go errors.
package result

// ResultType is the coarse outcome of a request.
type ResultType string

const (
	Success        ResultType = "Success"
	Error          ResultType = "Error"
	ActionRequired ResultType = "ActionRequired"
)

// ResultError describes a non-success outcome.
type ResultError struct {
	ResultMessage string `json:"resultMessage"`
	ErrorCode     string `json:"errorCode"`
}

// RequestResult wraps a payload with its status. A Success result with a
// zero TotalResultCount and no payload is a confirmed empty answer.
type RequestResult[T any] struct {
	ResourcePayload  *T           `json:"resourcePayload,omitempty"`
	ResultStatus     ResultType   `json:"resultStatus"`
	TotalResultCount int          `json:"totalResultCount"`
	ResultError      *ResultError `json:"resultError,omitempty"`
}

// Ok wraps payload in a Success result counting one item.
func Ok[T any](payload T) RequestResult[T] {
	return RequestResult[T]{ResourcePayload: &payload, ResultStatus: Success, TotalResultCount: 1}
}

// Empty returns a Success result with no payload.
func Empty[T any]() RequestResult[T] {
	return RequestResult[T]{ResultStatus: Success}
}

// Fail returns an Error result.
func Fail[T any](message, code string) RequestResult[T] {
	return RequestResult[T]{ResultStatus: Error, ResultError: &ResultError{ResultMessage: message, ErrorCode: code}}
}

// NeedsAction returns an ActionRequired result.
func NeedsAction[T any](message, code string) RequestResult[T] {
	return RequestResult[T]{ResultStatus: ActionRequired, ResultError: &ResultError{ResultMessage: message, ErrorCode: code}}
}

// IsSuccess reports whether the result carries a Success status.
func (r RequestResult[T]) IsSuccess() bool { return r.ResultStatus == Success }

// Message returns the error message, if any.
func (r RequestResult[T]) Message() string {
	if r.ResultError == nil {
		return ""
	}
	return r.ResultError.ResultMessage
}

// Code returns the error code, if any.
func (r RequestResult[T]) Code() string {
	if r.ResultError == nil {
		return ""
	}
	return r.ResultError.ErrorCode
}

// Convert carries status, count and error of r over to a result of another
// payload type, leaving the payload empty.
func Convert[T, U any](r RequestResult[T]) RequestResult[U] {
	return RequestResult[U]{ResultStatus: r.ResultStatus, TotalResultCount: r.TotalResultCount, ResultError: r.ResultError}
}
