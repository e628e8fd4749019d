package tenancy

import (
	"log/slog"
	"net/http"

	"github.com/barangaykms/barangaykms/internal/platform/httpx"
	"github.com/barangaykms/barangaykms/internal/shared"
)

// Middleware wires principal resolution into the HTTP stack.
type Middleware struct {
	Logger *slog.Logger
}

// RequirePrincipal resolves the principal once and stores it in context.
// Unauthenticated browsers are redirected to the login page.
func (m Middleware) RequirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		p, err := Resolve(sessionReader{sess})
		if err != nil {
			http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
	})
}

// RequirePrincipalAPI is the JSON variant: 401 problem response instead of a
// redirect.
func (m Middleware) RequirePrincipalAPI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		p, err := Resolve(sessionReader{sess})
		if err != nil {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
	})
}

// RequireModify rejects view-only roles before the handler runs. It assumes
// RequirePrincipal (or the API variant) already ran.
func (m Middleware) RequireModify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
			return
		}
		if !CanModify(p) {
			if m.Logger != nil {
				m.Logger.Warn("mutation blocked",
					slog.String("identity", p.Identity),
					slog.String("role", string(p.Role)),
					slog.String("path", r.URL.Path))
			}
			if sess := shared.SessionFromContext(r.Context()); sess != nil {
				sess.AddFlash(shared.FlashMessage{Kind: "error", Message: "Your role does not allow changes."})
			}
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireModifyAPI is the JSON variant of RequireModify.
func (m Middleware) RequireModifyAPI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
			return
		}
		if !CanModify(p) {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", string(ReasonInsufficientRole))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// sessionReader adapts *shared.Session to the resolver's SessionReader; a nil
// session reads as empty and resolves to ErrUnauthenticated.
type sessionReader struct {
	sess *shared.Session
}

func (s sessionReader) Get(key string) string {
	if s.sess == nil {
		return ""
	}
	return s.sess.Get(key)
}
