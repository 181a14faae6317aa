package api

import (
	"encoding/json"
	"log"
	"net/http"
	"net/mail"
	"strings"

	"carnival/internal/identity"

	"github.com/google/uuid"
)

// Authenticator checks bearer tokens issued by the identity provider.
type Authenticator struct {
	issuer *identity.Issuer
}

// NewAuthenticator wraps an issuer.
func NewAuthenticator(issuer *identity.Issuer) *Authenticator {
	return &Authenticator{issuer: issuer}
}

// Middleware rejects requests without a valid token and stores the user in
// the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := a.issuer.Verify(bearerToken(r))
		if err != nil {
			RecordConnectionRejected("auth")
			w.Header().Set("WWW-Authenticate", `Bearer realm="carnival"`)
			writeError(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(identity.WithUser(r.Context(), u)))
	})
}

// bearerToken reads the Authorization header, falling back to the token
// query parameter because browsers cannot set headers on WebSocket upgrades.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// DevUserID derives a stable user ID from an email.
func DevUserID(email string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("carnival:"+strings.ToLower(email))).String()
}

// handleDevToken issues a token for any email. Only mounted in development.
func (a *Authenticator) handleDevToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request", http.StatusBadRequest)
		return
	}
	addr, err := mail.ParseAddress(req.Email)
	if err != nil {
		writeError(w, "a valid email is required", http.StatusBadRequest)
		return
	}

	u := identity.User{ID: DevUserID(addr.Address), Email: addr.Address}
	token, err := a.issuer.Issue(u)
	if err != nil {
		writeError(w, "could not issue token", http.StatusInternalServerError)
		return
	}
	log.Printf("🔐 Dev token issued for %s", u.Email)
	writeJSON(w, map[string]string{"token": token, "userId": u.ID})
}
