// Package httpx sends request snapshots over HTTP and reports their
// completions.
package httpx

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/polyglot-request-logic/internal/core/domain"
	"github.com/tjfontaine/polyglot-request-logic/internal/core/ports"
	"github.com/tjfontaine/polyglot-request-logic/internal/headers"
)

// DefaultTimeout bounds a single round trip.
const DefaultTimeout = 30 * time.Second

// maxCertClients caps the number of cached client certificate clients.
const maxCertClients = 64

// ErrClientCertUnsupported is returned when a snapshot carries a client
// certificate but the configured round tripper cannot present one.
var ErrClientCertUnsupported = errors.New("round tripper does not support client certificates")

// Transport performs round trips in the background. Every accepted snapshot
// produces exactly one completion on the reporter.
type Transport struct {
	reporter ports.Reporter
	base     http.RoundTripper
	tls      *tls.Config
	timeout  time.Duration
	logger   *slog.Logger

	client *http.Client
	wg     sync.WaitGroup

	mu          sync.Mutex
	certClients map[string]*certClient
}

// certClient is a client presenting one client certificate. Its transport is
// kept so idle connections can be closed on eviction and shutdown.
type certClient struct {
	client    *http.Client
	transport *http.Transport
}

// Option configures a Transport.
type Option func(*Transport) error

// WithRoundTripper replaces the underlying round tripper.
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(t *Transport) error {
		if rt == nil {
			return errors.New("round tripper is nil")
		}
		t.base = rt
		return nil
	}
}

// WithTLSConfig sets the TLS configuration client certificates are added to.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(t *Transport) error {
		t.tls = cfg
		return nil
	}
}

// WithTimeout bounds every round trip. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(t *Transport) error {
		if d < 0 {
			return fmt.Errorf("timeout must not be negative: %s", d)
		}
		t.timeout = d
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) error {
		t.logger = logger
		return nil
	}
}

// New creates a transport reporting to reporter.
func New(reporter ports.Reporter, opts ...Option) (*Transport, error) {
	if reporter == nil {
		return nil, errors.New("reporter is required")
	}
	t := &Transport{
		reporter: reporter,
		base:     http.DefaultTransport,
		timeout:  DefaultTimeout,
		logger:   slog.Default(),

		certClients: make(map[string]*certClient),
	}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	if t.tls != nil {
		base, ok := t.base.(*http.Transport)
		if !ok {
			return nil, ErrClientCertUnsupported
		}
		base = base.Clone()
		base.TLSClientConfig = t.tls.Clone()
		t.base = base
	}
	t.client = t.newClient(t.base)
	return t, nil
}

func (t *Transport) newClient(rt http.RoundTripper) *http.Client {
	return &http.Client{
		Timeout:   t.timeout,
		Transport: otelhttp.NewTransport(rt),
	}
}

// Send validates snap and starts the round trip. An error means no
// completion will be reported.
func (t *Transport) Send(ctx context.Context, snap *domain.Snapshot) error {
	client, err := t.clientFor(snap.ClientCertificate())
	if err != nil {
		return err
	}
	req, sent, err := buildRequest(context.WithoutCancel(ctx), snap)
	if err != nil {
		return err
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.roundTrip(ctx, client, req, snap, sent)
	}()
	return nil
}

// Wait blocks until every started round trip has reported, then closes idle
// connections.
func (t *Transport) Wait() {
	t.wg.Wait()
	t.CloseIdleConnections()
}

// CloseIdleConnections closes idle connections of the shared client and of
// every cached client certificate client.
func (t *Transport) CloseIdleConnections() {
	if base, ok := t.base.(*http.Transport); ok {
		base.CloseIdleConnections()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, cc := range t.certClients {
		cc.transport.CloseIdleConnections()
	}
}

func (t *Transport) roundTrip(ctx context.Context, client *http.Client, req *http.Request, snap *domain.Snapshot, sent *domain.TransportRequest) {
	completion := &domain.Completion{
		ID:         snap.ID(),
		Generation: snap.Generation(),
		Request:    sent,
	}

	sent.StartTime = time.Now()
	resp, err := client.Do(req)
	if err == nil {
		completion.Response, err = readResponse(resp)
	}
	sent.EndTime = time.Now()
	completion.LoadingTime = sent.EndTime.Sub(sent.StartTime)

	if err != nil {
		t.logger.Debug("round trip failed",
			slog.String("request_id", snap.ID()),
			slog.String("error", err.Error()))
		completion.IsError = true
		completion.Err = &domain.TransportError{Err: err}
	}
	t.reporter.Report(context.WithoutCancel(ctx), completion)
}

// clientFor returns the client to use for cert. Clients presenting a client
// certificate are cached by fingerprint so their connection pool is reused.
func (t *Transport) clientFor(cert *domain.ClientCertificate) (*http.Client, error) {
	if cert == nil {
		return t.client, nil
	}
	base, ok := t.base.(*http.Transport)
	if !ok {
		return nil, ErrClientCertUnsupported
	}

	key := fingerprint(cert)
	t.mu.Lock()
	defer t.mu.Unlock()
	if cc, ok := t.certClients[key]; ok {
		return cc.client, nil
	}

	pair, err := keyPair(cert)
	if err != nil {
		return nil, err
	}
	base = base.Clone()
	if base.TLSClientConfig == nil {
		base.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	base.TLSClientConfig.Certificates = []tls.Certificate{pair}

	if len(t.certClients) >= maxCertClients {
		for k, old := range t.certClients {
			old.transport.CloseIdleConnections()
			delete(t.certClients, k)
			break
		}
	}
	cc := &certClient{client: t.newClient(base), transport: base}
	t.certClients[key] = cc
	return cc.client, nil
}

// fingerprint identifies the certificate material of cert.
func fingerprint(cert *domain.ClientCertificate) string {
	h := sha256.New()
	write := func(s string) {
		fmt.Fprintf(h, "%d:%s;", len(s), s)
	}
	write(strings.ToLower(cert.Type))
	for _, c := range cert.Cert {
		write(c.Data)
		write(c.Passphrase)
	}
	h.Write([]byte{'|'})
	for _, k := range cert.Key {
		write(k.Data)
		write(k.Passphrase)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// keyPair loads PEM certificate material. Only the first certificate and key
// entries are used.
func keyPair(cert *domain.ClientCertificate) (tls.Certificate, error) {
	if cert.Type != "" && !strings.EqualFold(cert.Type, "pem") {
		return tls.Certificate{}, fmt.Errorf("unsupported certificate type %q", cert.Type)
	}
	if len(cert.Cert) == 0 || len(cert.Key) == 0 {
		return tls.Certificate{}, errors.New("client certificate requires a certificate and a key")
	}
	pair, err := tls.X509KeyPair([]byte(cert.Cert[0].Data), []byte(cert.Key[0].Data))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("load client certificate: %w", err)
	}
	return pair, nil
}

func buildRequest(ctx context.Context, snap *domain.Snapshot) (*http.Request, *domain.TransportRequest, error) {
	sent := &domain.TransportRequest{
		URL:     snap.URL(),
		Method:  snap.Method(),
		Headers: snap.Headers(),
	}

	var body io.Reader
	if payload, ok := snap.Payload(); ok && domain.HasBody(snap.Method()) {
		body = strings.NewReader(payload)
		sent.Payload = &payload
	}

	req, err := http.NewRequestWithContext(ctx, snap.Method(), snap.URL(), body)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	for _, h := range headers.Parse(snap.Headers()) {
		if h.Name == "" {
			continue
		}
		if strings.EqualFold(h.Name, "host") {
			req.Host = h.Value
			continue
		}
		req.Header.Add(h.Name, h.Value)
	}
	return req, sent, nil
}

func readResponse(resp *http.Response) (*domain.Response, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &domain.Response{
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Headers:    headerString(resp.Header),
		Payload:    string(body),
	}, nil
}

// headerString renders h in the raw header format with names sorted.
func headerString(h http.Header) string {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []headers.Header
	for _, name := range names {
		for _, v := range h[name] {
			out = append(out, headers.Header{Name: strings.ToLower(name), Value: v})
		}
	}
	return headers.String(out)
}

var _ ports.Transport = (*Transport)(nil)
