package domain

import (
	"encoding/json"
)

// AuthType identifies the authorization scheme configured on a request.
type AuthType string

const (
	AuthTypeBasic             AuthType = "basic"
	AuthTypeOAuth2            AuthType = "oauth 2"
	AuthTypeClientCertificate AuthType = "client certificate"
)

// AuthConfig is the authorization configuration of a request. The concrete
// variants are BasicAuth, OAuth2Auth and ClientCertificateAuth.
type AuthConfig interface {
	Type() AuthType
}

// BasicAuth configures the Basic authorization scheme.
type BasicAuth struct {
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
}

func (*BasicAuth) Type() AuthType { return AuthTypeBasic }

// OAuth2Auth carries an already obtained OAuth 2 access token.
type OAuth2Auth struct {
	AccessToken    string `json:"accessToken"`
	TokenType      string `json:"tokenType,omitempty"`
	DeliveryMethod string `json:"deliveryMethod,omitempty"`
	DeliveryName   string `json:"deliveryName,omitempty"`
}

func (*OAuth2Auth) Type() AuthType { return AuthTypeOAuth2 }

// ClientCertificateAuth references a certificate held by a certificate store.
type ClientCertificateAuth struct {
	ID string `json:"id"`
}

func (*ClientCertificateAuth) Type() AuthType { return AuthTypeClientCertificate }

// DecodeAuth decodes raw auth JSON into the variant named by authType.
// Unknown types and empty payloads yield a nil configuration.
func DecodeAuth(authType AuthType, raw json.RawMessage) (AuthConfig, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var cfg AuthConfig
	switch authType {
	case AuthTypeBasic:
		cfg = &BasicAuth{}
	case AuthTypeOAuth2:
		cfg = &OAuth2Auth{}
	case AuthTypeClientCertificate:
		cfg = &ClientCertificateAuth{}
	default:
		return nil, nil
	}

	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
