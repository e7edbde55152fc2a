package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/Keksclan/goRawrGate/audit"
	"github.com/Keksclan/goRawrGate/auth"
	"github.com/Keksclan/goRawrGate/contextx"
	"github.com/Keksclan/goRawrGate/middleware"
	"github.com/Keksclan/goRawrGate/security"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userView struct {
	ID       string           `json:"id"`
	Username string           `json:"username"`
	Roles    security.RoleSet `json:"roles"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"tokenType"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      userView  `json:"user"`
}

// Login handles POST /auth/login: it checks the credentials against dir
// and answers with a bearer token from iss.
func Login(env *Env, dir *auth.Directory, iss *auth.Issuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Username == "" || req.Password == "" {
			middleware.WriteError(w, http.StatusBadRequest, CodeValidation, "username and password are required")
			return
		}

		u, err := dir.Verify(req.Username, req.Password)
		if errors.Is(err, auth.ErrInvalidCredentials) {
			if env.Events != nil {
				env.Events.Record(r.Context(), audit.UnauthorizedAccess, audit.Details{
					IP:        clientIP(r),
					UserAgent: r.UserAgent(),
					Method:    r.Method,
					Path:      r.URL.Path,
					User:      req.Username,
					RequestID: contextx.RequestIDFromContext(r.Context()),
					Reason:    "invalid credentials",
				})
			}
			middleware.WriteError(w, http.StatusUnauthorized, CodeInvalidCredentials, "invalid username or password")
			return
		}
		if err != nil {
			env.logger().ErrorContext(r.Context(), "credential check failed", "err", err)
			middleware.WriteError(w, http.StatusInternalServerError, middleware.CodeInternal, "internal server error")
			return
		}

		token, exp, err := iss.Issue(u)
		if err != nil {
			env.logger().ErrorContext(r.Context(), "token issue failed", "user", u.Username, "err", err)
			middleware.WriteError(w, http.StatusInternalServerError, middleware.CodeInternal, "internal server error")
			return
		}
		writeJSON(w, http.StatusOK, loginResponse{
			Token:     token,
			TokenType: "Bearer",
			ExpiresAt: exp,
			User:      userView{ID: u.ID, Username: u.Username, Roles: u.Roles},
		})
	}
}

// Profile handles GET /protected/profile: it returns the caller's
// identity.
func Profile(w http.ResponseWriter, r *http.Request) {
	a, ok := contextx.ActorFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, middleware.CodeAuthRequired, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, userView{ID: a.Subject, Username: a.Username, Roles: a.Roles})
}

func clientIP(r *http.Request) string {
	if addr, ok := contextx.ClientIPFromContext(r.Context()); ok {
		return addr.String()
	}
	return "unknown"
}
