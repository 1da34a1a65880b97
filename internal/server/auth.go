package server

import (
	"net/http"

	"github.com/tjfontaine/polyglot-request-logic/internal/auth"
	"github.com/tjfontaine/polyglot-request-logic/internal/core/ports"
)

// AuthMiddleware rejects requests without a valid bearer API key. The
// authenticated caller is added to the request log. Authenticators that
// report Enabled() == false let every request through.
func AuthMiddleware(a ports.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if e, ok := a.(interface{ Enabled() bool }); ok && !e.Enabled() {
				next.ServeHTTP(w, r)
				return
			}
			key, err := auth.ExtractAPIKey(r)
			if err != nil {
				unauthorized(w, r, err)
				return
			}
			caller, err := a.Authenticate(r.Context(), key)
			if err != nil {
				unauthorized(w, r, err)
				return
			}
			AddLogField(r.Context(), "caller", caller.Name)
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request, err error) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="request-logic"`)
	writeError(w, r, http.StatusUnauthorized, err)
}
