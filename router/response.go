package router

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Error codes emitted by the dispatch pipeline. Handlers may raise any other
// code through an *ErrorResponse.
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeMethodNotFound   = "METHOD_NOT_FOUND"
	CodeInvalidParameter = "INVALID_PARAMETER"
	CodeUnknownError     = "UNKNOWN_ERROR"
)

// Response is the outcome of dispatching a request. It is always exactly one
// of *SuccessResponse or *ErrorResponse.
type Response interface {
	// Succeeded reports the value of the success discriminant.
	Succeeded() bool
	response()
}

var (
	_ Response = (*SuccessResponse)(nil)
	_ Response = (*ErrorResponse)(nil)
	_ error    = (*ErrorResponse)(nil)
)

// SuccessResponse carries a handler's result. A nil Response is omitted from
// the encoded form.
type SuccessResponse struct {
	Response any
}

func (*SuccessResponse) Succeeded() bool { return true }
func (*SuccessResponse) response()       {}

func (r SuccessResponse) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Success  bool `json:"success"`
		Response any  `json:"response,omitempty"`
	}{Success: true, Response: r.Response})
}

// ErrorResponse is a failed outcome identified by a stable machine-readable
// Type. It implements error so that handlers can return it, optionally
// wrapped, to fail a call with a code of their choosing.
type ErrorResponse struct {
	Type                 string
	AdditionalProperties any
}

// NewError builds an ErrorResponse. props may be nil.
func NewError(code string, props any) *ErrorResponse {
	return &ErrorResponse{Type: code, AdditionalProperties: props}
}

func (*ErrorResponse) Succeeded() bool { return false }
func (*ErrorResponse) response()       {}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("rpc error: %s", e.Type)
}

func (e ErrorResponse) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Success              bool   `json:"success"`
		Type                 string `json:"type"`
		AdditionalProperties any    `json:"additionalProperties,omitempty"`
	}{Success: false, Type: e.Type, AdditionalProperties: e.AdditionalProperties})
}

// IsSuccess reports whether r is a *SuccessResponse.
func IsSuccess(r Response) bool {
	_, ok := r.(*SuccessResponse)
	return ok
}

// IsError reports whether r is an *ErrorResponse.
func IsError(r Response) bool {
	_, ok := r.(*ErrorResponse)
	return ok
}

// DecodeResponse parses the encoded form of either response variant. Payloads
// are kept as json.RawMessage so callers can decode them into their own types.
func DecodeResponse(data []byte) (Response, error) {
	var probe struct {
		Success              *bool           `json:"success"`
		Response             json.RawMessage `json:"response"`
		Type                 *string         `json:"type"`
		AdditionalProperties json.RawMessage `json:"additionalProperties"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if probe.Success == nil {
		return nil, errors.New("decode response: missing success discriminant")
	}
	if *probe.Success {
		res := &SuccessResponse{}
		if !isNull(probe.Response) {
			res.Response = probe.Response
		}
		return res, nil
	}
	if probe.Type == nil {
		return nil, errors.New("decode response: error response without type")
	}
	res := &ErrorResponse{Type: *probe.Type}
	if !isNull(probe.AdditionalProperties) {
		res.AdditionalProperties = probe.AdditionalProperties
	}
	return res, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func invalidRequest(issues []Issue) *ErrorResponse {
	return &ErrorResponse{Type: CodeInvalidRequest, AdditionalProperties: issues}
}

func invalidParameter(issues []Issue) *ErrorResponse {
	return &ErrorResponse{Type: CodeInvalidParameter, AdditionalProperties: issues}
}

func methodNotFound() *ErrorResponse {
	return &ErrorResponse{Type: CodeMethodNotFound}
}

func unknownError() *ErrorResponse {
	return &ErrorResponse{Type: CodeUnknownError}
}
