package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/barangaykms/barangaykms/internal/announcements"
	"github.com/barangaykms/barangaykms/internal/audit"
	"github.com/barangaykms/barangaykms/internal/auth"
	"github.com/barangaykms/barangaykms/internal/barangays"
	"github.com/barangaykms/barangaykms/internal/documents"
	"github.com/barangaykms/barangaykms/internal/knowledge"
	"github.com/barangaykms/barangaykms/internal/notifications"
	"github.com/barangaykms/barangaykms/internal/observability"
	"github.com/barangaykms/barangaykms/internal/shared"
	"github.com/barangaykms/barangaykms/internal/tenancy"
	"github.com/barangaykms/barangaykms/internal/users"
	"github.com/barangaykms/barangaykms/internal/view"
	"github.com/barangaykms/barangaykms/jobs"
	"github.com/barangaykms/barangaykms/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Templates      *view.Engine
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	TenancyMW      tenancy.Middleware

	AuthHandler          *auth.Handler
	AuditHandler         *audit.Handler
	AnnouncementsHandler *announcements.Handler
	DocumentsHandler     *documents.Handler
	KnowledgeHandler     *knowledge.Handler
	BarangaysHandler     *barangays.Handler
	UsersHandler         *users.Handler
	NotificationsHandler *notifications.Handler
	JobsHandler          *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router for the portal.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Landing page for unauthenticated visitors.
	r.Get("/welcome", func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		csrfToken, _ := params.CSRFManager.EnsureToken(r.Context(), sess)
		var flash *shared.FlashMessage
		if sess != nil {
			flash = sess.PopFlash()
		}
		data := view.TemplateData{
			Title:     "Barangay Knowledge Portal",
			CSRFToken: csrfToken,
			Flash:     flash,
		}
		if err := params.Templates.Render(w, "pages/landing.html", data); err != nil {
			params.Logger.Error("render landing", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || sess.User() == "" {
			http.Redirect(w, r, "/welcome", http.StatusSeeOther)
			return
		}

		p, err := tenancy.Resolve(sess)
		if err != nil {
			http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
			return
		}

		csrfToken, _ := params.CSRFManager.EnsureToken(r.Context(), sess)
		flash := sess.PopFlash()
		data := view.TemplateData{
			Title:     "Barangay Knowledge Portal",
			CSRFToken: csrfToken,
			Flash:     flash,
			Data: map[string]any{
				"AppEnv":    params.Config.AppEnv,
				"RoleLabel": p.Role.Label(),
				"CanModify": tenancy.CanModify(p),
				"IsSuper":   tenancy.IsSuperAdmin(p),
				"CanAudit":  audit.CanView(p),
			},
		}
		if err := params.Templates.Render(w, "pages/home.html", data); err != nil {
			params.Logger.Error("render home", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)

	// Server-rendered pages; every route below resolves a principal first.
	r.Group(func(r chi.Router) {
		r.Use(params.TenancyMW.RequirePrincipal)
		r.Route("/announcements", params.AnnouncementsHandler.MountRoutes)
		r.Route("/documents", params.DocumentsHandler.MountRoutes)
		r.Route("/knowledge", params.KnowledgeHandler.MountRoutes)
		r.Route("/barangays", params.BarangaysHandler.MountRoutes)
		r.Route("/users", params.UsersHandler.MountRoutes)
		r.Route("/audit", params.AuditHandler.MountRoutes)
	})

	// JSON API.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(params.TenancyMW.RequirePrincipalAPI)
		r.Route("/announcements", params.AnnouncementsHandler.MountAPIRoutes)
		r.Route("/documents", params.DocumentsHandler.MountAPIRoutes)
		r.Route("/knowledge", params.KnowledgeHandler.MountAPIRoutes)
		r.Route("/barangays", params.BarangaysHandler.MountAPIRoutes)
		r.Route("/users", params.UsersHandler.MountAPIRoutes)
		r.Route("/notifications", params.NotificationsHandler.MountAPIRoutes)
	})

	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// staticCacheHandler wraps a file server with Cache-Control headers.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
