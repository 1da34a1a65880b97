// Package domain defines the request, result and error types shared by the
// request-logic pipeline and its collaborators.
package domain

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Request is the mutable per-request record tracked while a request is in
// flight. It is created from the caller's intent, rewritten by variable
// substitution, pre-request hooks and authorization, and finally frozen into a
// Snapshot for the transport.
type Request struct {
	ID      string `json:"id" validate:"required"`
	URL     string `json:"url" validate:"required"`
	Method  string `json:"method" validate:"required"`
	Headers string `json:"headers,omitempty"`
	// Payload is nil when the request carries no body.
	Payload *string `json:"payload,omitempty"`

	Auth AuthConfig `json:"-"`

	RequestActions  *RequestActions   `json:"requestActions,omitempty"`
	ResponseActions []json.RawMessage `json:"responseActions,omitempty"`

	// ClientCertificate is attached by the authorization stage and shared by
	// reference with the snapshot handed to the transport.
	ClientCertificate *ClientCertificate `json:"clientCertificate,omitempty"`
}

// RequestActions holds the actions executed before the request is evaluated.
type RequestActions struct {
	Variables []VariableDefinition `json:"variables,omitempty"`
}

// VariableDefinition declares a variable override applied before evaluation.
type VariableDefinition struct {
	Variable string `json:"variable"`
	Value    string `json:"value"`
	// Enabled is a pointer so that an omitted flag counts as enabled.
	Enabled *bool `json:"enabled,omitempty"`
}

// IsEnabled reports whether the definition takes part in evaluation.
func (d VariableDefinition) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// ClientCertificate is the certificate material attached to a request.
type ClientCertificate struct {
	Type string            `json:"type"`
	Cert []CertificateData `json:"cert"`
	Key  []CertificateData `json:"key,omitempty"`
}

// CertificateData is a single certificate or key blob.
type CertificateData struct {
	Data       string `json:"data"`
	Passphrase string `json:"passphrase,omitempty"`
}

// Certificate is an entry returned by a certificate store.
type Certificate struct {
	ID   string           `json:"id"`
	Type string           `json:"type"`
	Cert CertificateData  `json:"cert"`
	Key  *CertificateData `json:"key,omitempty"`
}

// HasBody reports whether the method may carry a payload.
func HasBody(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead:
		return false
	}
	return true
}

// Clone returns a shallow copy of the request. Scalar fields are copied;
// the payload, actions, auth configuration and client certificate are shared.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// PayloadString returns the payload or an empty string when absent.
func (r *Request) PayloadString() string {
	if r.Payload == nil {
		return ""
	}
	return *r.Payload
}

// SetPayload stores a copy of s as the payload.
func (r *Request) SetPayload(s string) {
	r.Payload = &s
}

// MarshalJSON writes the auth configuration as the auth/authType pair.
func (r Request) MarshalJSON() ([]byte, error) {
	type plain Request
	out := struct {
		plain
		Auth     AuthConfig `json:"auth,omitempty"`
		AuthType AuthType   `json:"authType,omitempty"`
	}{plain: plain(r), Auth: r.Auth}
	if r.Auth != nil {
		out.AuthType = r.Auth.Type()
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the auth/authType pair into the matching AuthConfig.
func (r *Request) UnmarshalJSON(data []byte) error {
	type plain Request
	var in struct {
		plain
		Auth     json.RawMessage `json:"auth,omitempty"`
		AuthType AuthType        `json:"authType,omitempty"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = Request(in.plain)
	auth, err := DecodeAuth(in.AuthType, in.Auth)
	if err != nil {
		return fmt.Errorf("decode %q auth: %w", in.AuthType, err)
	}
	r.Auth = auth
	return nil
}
