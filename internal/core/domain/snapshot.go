package domain

import (
	"encoding/json"
	"slices"
)

// Snapshot is the read-only form of a Request handed to a transport. Its
// fields cannot be changed after creation. Objects it references (the auth
// configuration and the client certificate) are shared with the record they
// were taken from, so changes made to their internals remain visible.
type Snapshot struct {
	req        Request
	generation uint64
}

// NewSnapshot freezes req. The generation identifies the submission the
// snapshot belongs to; completions carrying a different generation are
// treated as stale.
func NewSnapshot(req *Request, generation uint64) *Snapshot {
	s := &Snapshot{req: *req, generation: generation}
	if req.Payload != nil {
		p := *req.Payload
		s.req.Payload = &p
	}
	s.req.ResponseActions = slices.Clone(req.ResponseActions)
	return s
}

func (s *Snapshot) ID() string         { return s.req.ID }
func (s *Snapshot) URL() string        { return s.req.URL }
func (s *Snapshot) Method() string     { return s.req.Method }
func (s *Snapshot) Headers() string    { return s.req.Headers }
func (s *Snapshot) Auth() AuthConfig   { return s.req.Auth }
func (s *Snapshot) Generation() uint64 { return s.generation }

// Payload returns the request body and whether one is present.
func (s *Snapshot) Payload() (string, bool) {
	if s.req.Payload == nil {
		return "", false
	}
	return *s.req.Payload, true
}

// ClientCertificate returns the certificate attached during authorization.
func (s *Snapshot) ClientCertificate() *ClientCertificate {
	return s.req.ClientCertificate
}

// HasResponseActions reports whether the request declared response actions.
func (s *Snapshot) HasResponseActions() bool {
	return len(s.req.ResponseActions) > 0
}

// Request returns a mutable copy of the frozen request.
func (s *Snapshot) Request() *Request {
	c := s.req
	c.ResponseActions = slices.Clone(s.req.ResponseActions)
	return &c
}

// MarshalJSON encodes the snapshot with the request's boundary field names.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.req)
}
