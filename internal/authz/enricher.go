// Package authz applies a request's authorization configuration to the
// request itself: it writes Authorization style headers or attaches client
// certificate material for the transport.
package authz

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/tjfontaine/polyglot-request-logic/internal/core/domain"
	"github.com/tjfontaine/polyglot-request-logic/internal/core/ports"
	"github.com/tjfontaine/polyglot-request-logic/internal/headers"
)

const (
	authorizationHeader  = "authorization"
	deliveryMethodHeader = "header"
	defaultTokenType     = "Bearer"
)

// Enricher applies authorization configurations. It never fails: a missing
// or incomplete configuration leaves the request unchanged.
type Enricher struct {
	certs  ports.CertificateStore
	logger *slog.Logger
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithCertificateStore sets the store consulted for client certificates.
func WithCertificateStore(store ports.CertificateStore) Option {
	return func(e *Enricher) { e.certs = store }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Enricher) { e.logger = logger }
}

// NewEnricher creates an enricher.
func NewEnricher(opts ...Option) *Enricher {
	e := &Enricher{}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Enrich mutates req according to req.Auth.
func (e *Enricher) Enrich(ctx context.Context, req *domain.Request) {
	if req == nil || req.Auth == nil {
		return
	}

	switch auth := req.Auth.(type) {
	case *domain.BasicAuth:
		applyBasic(req, auth)
	case *domain.OAuth2Auth:
		applyOAuth2(req, auth)
	case *domain.ClientCertificateAuth:
		e.applyClientCertificate(ctx, req, auth)
	default:
		e.logger.Debug("unsupported auth type",
			slog.String("request_id", req.ID),
			slog.String("auth_type", string(req.Auth.Type())))
	}
}

func applyBasic(req *domain.Request, auth *domain.BasicAuth) {
	if auth == nil || auth.Username == "" {
		return
	}
	creds := base64.StdEncoding.EncodeToString([]byte(auth.Username + ":" + auth.Password))
	req.Headers = headers.ReplaceValue(req.Headers, authorizationHeader, "Basic "+creds)
}

// applyOAuth2 writes "<tokenType> <accessToken>". The configured token type
// is used as given; only an empty type falls back to Bearer.
func applyOAuth2(req *domain.Request, auth *domain.OAuth2Auth) {
	if auth == nil {
		return
	}
	tok := &oauth2.Token{AccessToken: auth.AccessToken, TokenType: auth.TokenType}
	if !tok.Valid() {
		return
	}
	if auth.DeliveryMethod != "" && auth.DeliveryMethod != deliveryMethodHeader {
		return
	}

	tokenType := tok.TokenType
	if tokenType == "" {
		tokenType = defaultTokenType
	}
	name := auth.DeliveryName
	if name == "" {
		name = authorizationHeader
	}
	req.Headers = headers.ReplaceValue(req.Headers, name, tokenType+" "+tok.AccessToken)
}

func (e *Enricher) applyClientCertificate(ctx context.Context, req *domain.Request, auth *domain.ClientCertificateAuth) {
	if auth == nil || auth.ID == "" || e.certs == nil {
		return
	}

	cert, err := e.certs.GetCertificate(ctx, auth.ID)
	if err != nil || cert == nil {
		attrs := []any{slog.String("request_id", req.ID), slog.String("certificate_id", auth.ID)}
		if err != nil && !errors.Is(err, domain.ErrCertificateNotFound) {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		e.logger.Debug("client certificate unavailable", attrs...)
		return
	}

	cc := &domain.ClientCertificate{
		Type: cert.Type,
		Cert: []domain.CertificateData{cert.Cert},
	}
	if cert.Key != nil {
		cc.Key = []domain.CertificateData{*cert.Key}
	}
	req.ClientCertificate = cc
}
