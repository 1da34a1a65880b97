package domain

import (
	"encoding/json"
	"time"
)

// TransportRequest describes the request as it was sent by the transport.
type TransportRequest struct {
	URL         string    `json:"url"`
	Method      string    `json:"method"`
	Headers     string    `json:"headers,omitempty"`
	Payload     *string   `json:"payload,omitempty"`
	HTTPMessage string    `json:"httpMessage,omitempty"`
	StartTime   time.Time `json:"startTime,omitempty"`
	EndTime     time.Time `json:"endTime,omitempty"`
}

// Response is the response produced by a transport.
type Response struct {
	Status     int    `json:"status"`
	StatusText string `json:"statusText,omitempty"`
	Headers    string `json:"headers,omitempty"`
	Payload    string `json:"payload,omitempty"`
}

// Completion is reported by a transport once a dispatched request finished,
// successfully or not.
type Completion struct {
	ID string
	// Generation, when non-zero, must match the snapshot's generation.
	Generation  uint64
	IsError     bool
	Err         error
	Request     *TransportRequest
	Response    *Response
	LoadingTime time.Duration
	IsXHR       bool
}

// Result is the terminal notification delivered for a request id.
type Result struct {
	ID               string
	IsError          bool
	Err              error
	Request          *Request
	TransportRequest *TransportRequest
	Response         *Response
	LoadingTime      time.Duration
	IsXHR            bool
	// ActionsResult is set when a response hook handled the response actions.
	ActionsResult any
}

// MarshalJSON encodes the result with the boundary field names. The error is
// rendered as its message and the loading time in milliseconds. Credentials
// in the request and the sent headers are redacted.
func (r *Result) MarshalJSON() ([]byte, error) {
	out := struct {
		ID               string            `json:"id"`
		IsError          bool              `json:"isError"`
		Error            string            `json:"error,omitempty"`
		Request          *Request          `json:"request,omitempty"`
		TransportRequest *TransportRequest `json:"transportRequest,omitempty"`
		Response         *Response         `json:"response,omitempty"`
		LoadingTime      float64           `json:"loadingTime"`
		IsXHR            bool              `json:"isXhr,omitempty"`
		ActionsResult    any               `json:"actionsResult,omitempty"`
	}{
		ID:               r.ID,
		IsError:          r.IsError,
		Request:          r.Request.redacted(),
		TransportRequest: r.TransportRequest.redacted(secretHeaders(r.Request)),
		Response:         r.Response,
		LoadingTime:      float64(r.LoadingTime) / float64(time.Millisecond),
		IsXHR:            r.IsXHR,
		ActionsResult:    r.ActionsResult,
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}
