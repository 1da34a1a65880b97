package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/tjfontaine/polyglot-request-logic/internal/core/domain"
	"github.com/tjfontaine/polyglot-request-logic/internal/core/ports"
)

const (
	// DefaultHistoryLimit applies when GET /v1/history has no limit.
	DefaultHistoryLimit = 50
	// MaxResultWait caps the wait parameter of GET /v1/results/{id}.
	MaxResultWait = 25 * time.Second

	maxBodyBytes = 4 << 20
)

var (
	errRateLimited = errors.New("rate limit exceeded")
	errNotPending  = errors.New("no pending request with this id")
	errNoResult    = errors.New("no result for this id")
)

// Logic is the request pipeline driven by the API.
type Logic interface {
	Submit(ctx context.Context, req *domain.Request) error
	Continue(id string) bool
	Resend(ctx context.Context, id string) bool
	Abort(ctx context.Context, id, reason string) bool
	Report(ctx context.Context, c *domain.Completion)
	Pending() int
}

// ResultAwaiter blocks until a result for id exists.
type ResultAwaiter interface {
	Await(ctx context.Context, id string) ([]byte, error)
}

// Handler serves the request API.
type Handler struct {
	logic    Logic
	results  ports.ResultStore
	awaiter  ResultAwaiter
	history  ports.HistoryStore
	certs    ports.CertificateRepository
	auth     ports.Authenticator
	validate *validator.Validate
}

// HandlerConfig lists the collaborators of a Handler. Only Logic is
// required; routes whose backend is missing answer 501.
type HandlerConfig struct {
	Logic         Logic
	Results       ports.ResultStore
	Awaiter       ResultAwaiter
	History       ports.HistoryStore
	Certificates  ports.CertificateRepository
	// Authenticator, when set, guards every /v1 route.
	Authenticator ports.Authenticator
}

// NewHandler creates the API handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		logic:    cfg.Logic,
		results:  cfg.Results,
		awaiter:  cfg.Awaiter,
		history:  cfg.History,
		certs:    cfg.Certificates,
		auth:     cfg.Authenticator,
		validate: validator.New(),
	}
}

// Routes registers the API routes on r.
func (h *Handler) Routes(r chi.Router, submitLimit func(http.Handler) http.Handler) {
	r.Route("/v1", func(r chi.Router) {
		if h.auth != nil {
			r.Use(AuthMiddleware(h.auth))
		}
		r.Route("/requests", func(r chi.Router) {
			if submitLimit != nil {
				r.With(submitLimit).Post("/", h.submit)
			} else {
				r.Post("/", h.submit)
			}
			r.Post("/{id}/continue", h.cont)
			r.Post("/{id}/resend", h.resend)
			r.Post("/{id}/abort", h.abort)
			r.Post("/{id}/report", h.report)
		})
		r.Get("/results/{id}", h.result)
		r.Get("/history", h.listHistory)
		r.Get("/certificates", h.listCertificates)
		r.Put("/certificates/{id}", h.putCertificate)
		r.Delete("/certificates/{id}", h.deleteCertificate)
	})
	r.Get("/healthz", h.healthz)
}

// submitRequest is the body of POST /v1/requests.
type submitRequest struct {
	ID              string                 `json:"id" validate:"omitempty,max=256"`
	URL             string                 `json:"url" validate:"required"`
	Method          string                 `json:"method" validate:"required,uppercase,max=32"`
	Headers         string                 `json:"headers"`
	Payload         *string                `json:"payload"`
	AuthType        domain.AuthType        `json:"authType" validate:"omitempty,oneof=basic 'oauth 2' 'client certificate'"`
	Auth            json.RawMessage        `json:"auth"`
	RequestActions  *domain.RequestActions `json:"requestActions"`
	ResponseActions []json.RawMessage      `json:"responseActions"`
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var body submitRequest
	if !h.decode(w, r, &body) {
		return
	}

	auth, err := domain.DecodeAuth(body.AuthType, body.Auth)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if body.ID == "" {
		body.ID = uuid.NewString()
	}

	req := &domain.Request{
		ID:              body.ID,
		URL:             body.URL,
		Method:          body.Method,
		Headers:         body.Headers,
		Payload:         body.Payload,
		Auth:            auth,
		RequestActions:  body.RequestActions,
		ResponseActions: body.ResponseActions,
	}
	AddLogField(r.Context(), "request_id", req.ID)

	if err := h.logic.Submit(r.Context(), req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": req.ID})
}

func (h *Handler) cont(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.control(w, r, id, "continued", h.logic.Continue(id))
}

func (h *Handler) resend(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.control(w, r, id, "resent", h.logic.Resend(r.Context(), id))
}

type abortRequest struct {
	Reason string `json:"reason" validate:"max=1024"`
}

func (h *Handler) abort(w http.ResponseWriter, r *http.Request) {
	var body abortRequest
	if !h.decodeBody(w, r, &body, true) {
		return
	}
	id := chi.URLParam(r, "id")
	h.control(w, r, id, "aborted", h.logic.Abort(r.Context(), id, body.Reason))
}

func (h *Handler) control(w http.ResponseWriter, r *http.Request, id, status string, ok bool) {
	AddLogField(r.Context(), "request_id", id)
	if !ok {
		writeError(w, r, http.StatusNotFound, errNotPending)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": status})
}

// reportRequest is the completion posted by an external transport.
type reportRequest struct {
	Generation    uint64                   `json:"generation"`
	Error         string                   `json:"error"`
	Request       *domain.TransportRequest `json:"request"`
	Response      *domain.Response         `json:"response"`
	LoadingTimeMS float64                  `json:"loadingTime" validate:"gte=0"`
	IsXHR         bool                     `json:"isXhr"`
}

// report accepts every well-formed completion; completions for unknown or
// finalized requests are dropped by the pipeline.
func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	var body reportRequest
	if !h.decode(w, r, &body) {
		return
	}
	id := chi.URLParam(r, "id")
	AddLogField(r.Context(), "request_id", id)

	c := &domain.Completion{
		ID:          id,
		Generation:  body.Generation,
		Request:     body.Request,
		Response:    body.Response,
		LoadingTime: time.Duration(body.LoadingTimeMS * float64(time.Millisecond)),
		IsXHR:       body.IsXHR,
	}
	if body.Error != "" {
		c.IsError = true
		c.Err = &domain.TransportError{Err: errors.New(body.Error)}
	}
	h.logic.Report(r.Context(), c)
	w.WriteHeader(http.StatusAccepted)
}

// result returns the stored result. With ?wait=<duration> the call blocks
// until the result is delivered, up to MaxResultWait.
func (h *Handler) result(w http.ResponseWriter, r *http.Request) {
	if h.results == nil {
		writeError(w, r, http.StatusNotImplemented, errors.New("results are not stored"))
		return
	}
	id := chi.URLParam(r, "id")
	AddLogField(r.Context(), "request_id", id)

	var wait time.Duration
	if raw := r.URL.Query().Get("wait"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			writeError(w, r, http.StatusBadRequest, errors.New("invalid wait duration"))
			return
		}
		wait = min(d, MaxResultWait)
	}

	var (
		body []byte
		err  error
	)
	if wait > 0 && h.awaiter != nil {
		ctx, cancel := context.WithTimeout(r.Context(), wait)
		defer cancel()
		body, err = h.awaiter.Await(ctx, id)
		if errors.Is(err, context.DeadlineExceeded) {
			err = ports.ErrNotFound
		}
	} else {
		body, err = h.results.GetResult(r.Context(), id)
	}

	switch {
	case errors.Is(err, ports.ErrNotFound):
		writeError(w, r, http.StatusNotFound, errNoResult)
	case err != nil:
		writeError(w, r, http.StatusInternalServerError, err)
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}
}

func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, r, http.StatusNotImplemented, errors.New("history is not recorded"))
		return
	}
	limit := DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, r, http.StatusBadRequest, errors.New("invalid limit"))
			return
		}
		limit = n
	}

	entries, err := h.history.ListHistory(r.Context(), limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []*ports.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

type certificateRequest struct {
	Type string                  `json:"type" validate:"required"`
	Cert domain.CertificateData  `json:"cert"`
	Key  *domain.CertificateData `json:"key"`
}

// certificateInfo describes a stored certificate without its key material.
type certificateInfo struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	HasKey bool   `json:"hasKey"`
}

func (h *Handler) listCertificates(w http.ResponseWriter, r *http.Request) {
	if h.certs == nil {
		writeError(w, r, http.StatusNotImplemented, errors.New("certificates are not stored"))
		return
	}
	certs, err := h.certs.ListCertificates(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	out := make([]certificateInfo, len(certs))
	for i, c := range certs {
		out[i] = certificateInfo{ID: c.ID, Type: c.Type, HasKey: c.Key != nil}
	}
	writeJSON(w, http.StatusOK, map[string]any{"certificates": out})
}

func (h *Handler) putCertificate(w http.ResponseWriter, r *http.Request) {
	if h.certs == nil {
		writeError(w, r, http.StatusNotImplemented, errors.New("certificates are not stored"))
		return
	}
	var body certificateRequest
	if !h.decode(w, r, &body) {
		return
	}
	if body.Cert.Data == "" {
		writeError(w, r, http.StatusBadRequest, errors.New("cert.data is required"))
		return
	}

	cert := &domain.Certificate{ID: chi.URLParam(r, "id"), Type: body.Type, Cert: body.Cert, Key: body.Key}
	if err := h.certs.SaveCertificate(r.Context(), cert); err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteCertificate(w http.ResponseWriter, r *http.Request) {
	if h.certs == nil {
		writeError(w, r, http.StatusNotImplemented, errors.New("certificates are not stored"))
		return
	}
	err := h.certs.DeleteCertificate(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, domain.ErrCertificateNotFound):
		writeError(w, r, http.StatusNotFound, err)
	case err != nil:
		writeError(w, r, http.StatusInternalServerError, err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "pending": h.logic.Pending()})
}

// decode reads a JSON body into v and validates it. It writes the error
// response and returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	return h.decodeBody(w, r, v, false)
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !(optional && errors.Is(err, io.EOF)) {
		writeError(w, r, http.StatusBadRequest, err)
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return false
	}
	return true
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	AddError(r.Context(), err)
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
