package domain

import "github.com/tjfontaine/polyglot-request-logic/internal/headers"

// Redacted replaces secret values in the boundary form of a result.
const Redacted = "[redacted]"

// credentialHeaders always carry secrets when present.
var credentialHeaders = []string{"authorization", "proxy-authorization"}

// redacted returns a copy of r without credentials: passwords, access
// tokens, private keys and passphrases are dropped and credential headers
// are masked. r itself is not modified.
func (r *Request) redacted() *Request {
	if r == nil {
		return nil
	}
	c := r.Clone()

	switch auth := r.Auth.(type) {
	case *BasicAuth:
		if auth != nil {
			c.Auth = &BasicAuth{Username: auth.Username}
		}
	case *OAuth2Auth:
		if auth != nil {
			c.Auth = &OAuth2Auth{
				TokenType:      auth.TokenType,
				DeliveryMethod: auth.DeliveryMethod,
				DeliveryName:   auth.DeliveryName,
			}
		}
	}
	c.Headers = redactHeaders(r.Headers, secretHeaders(r))

	if cc := r.ClientCertificate; cc != nil {
		certs := make([]CertificateData, len(cc.Cert))
		for i, d := range cc.Cert {
			certs[i] = CertificateData{Data: d.Data}
		}
		c.ClientCertificate = &ClientCertificate{Type: cc.Type, Cert: certs}
	}
	return c
}

func (t *TransportRequest) redacted(names []string) *TransportRequest {
	if t == nil {
		return nil
	}
	c := *t
	c.Headers = redactHeaders(t.Headers, names)
	return &c
}

func redactHeaders(raw string, names []string) string {
	if raw == "" {
		return raw
	}
	return headers.Mask(raw, Redacted, names...)
}

// secretHeaders lists the headers masked for req.
func secretHeaders(req *Request) []string {
	if req != nil {
		if auth, ok := req.Auth.(*OAuth2Auth); ok && auth != nil && auth.DeliveryName != "" {
			return append([]string{auth.DeliveryName}, credentialHeaders...)
		}
	}
	return credentialHeaders
}
