package audit

import (
	"encoding/csv"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/barangaykms/barangaykms/internal/shared"
	"github.com/barangaykms/barangaykms/internal/tenancy"
	"github.com/barangaykms/barangaykms/internal/view"
)

// Handler serves the audit timeline page and its CSV export.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf}
}

// MountRoutes registers the server-rendered routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.timeline)
	r.Get("/export.csv", h.exportCSV)
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	if !CanView(p) {
		http.NotFound(w, r)
		return
	}
	filters := filtersFromQuery(r)
	result, err := h.service.Timeline(r.Context(), p, filters)
	if err != nil {
		h.logger.Error("audit timeline", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.render(w, r, map[string]any{
		"Rows":    result.Rows,
		"Paging":  result.Paging,
		"Filters": filters,
	})
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	if !CanView(p) {
		http.NotFound(w, r)
		return
	}
	rows, err := h.service.Export(r.Context(), p, filtersFromQuery(r))
	if err != nil {
		h.logger.Error("audit export", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-trail.csv"`)
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"occurred_at", "actor", "action", "entity", "entity_id", "barangay_id"})
	for _, row := range rows {
		barangay := ""
		if row.BarangayID != nil {
			barangay = strconv.FormatInt(*row.BarangayID, 10)
		}
		_ = cw.Write([]string{
			row.At.Format(time.RFC3339),
			row.Actor,
			row.Action,
			row.Entity,
			row.EntityID,
			barangay,
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		h.logger.Error("audit export write", slog.Any("error", err))
	}
}

func filtersFromQuery(r *http.Request) TimelineFilters {
	q := r.URL.Query()
	filters := TimelineFilters{
		Actor:  q.Get("actor"),
		Entity: q.Get("entity"),
		Action: q.Get("action"),
	}
	if from, err := time.Parse("2006-01-02", q.Get("from")); err == nil {
		filters.From = from
	}
	if to, err := time.Parse("2006-01-02", q.Get("to")); err == nil {
		// Make the upper bound inclusive of the chosen day.
		filters.To = to.Add(24 * time.Hour)
	}
	if page, err := strconv.Atoi(q.Get("page")); err == nil {
		filters.Page = page
	}
	return filters
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, data map[string]any) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: "Audit Trail", CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Data: data}
	if err := h.templates.Render(w, "pages/audit/list.html", viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}
