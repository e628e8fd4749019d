package announcements

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/barangaykms/barangaykms/internal/observability"
	"github.com/barangaykms/barangaykms/internal/platform/httpx"
	"github.com/barangaykms/barangaykms/internal/shared"
	"github.com/barangaykms/barangaykms/internal/tenancy"
	"github.com/barangaykms/barangaykms/internal/view"
)

// Handler serves the announcement pages and the JSON API.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	templates   *view.Engine
	csrf        *shared.CSRFManager
	tenancyMW   tenancy.Middleware
	metrics     *observability.Metrics
	idempotency *shared.IdempotencyStore
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, tenancyMW tenancy.Middleware, metrics *observability.Metrics, idempotency *shared.IdempotencyStore) *Handler {
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, tenancyMW: tenancyMW, metrics: metrics, idempotency: idempotency}
}

type formErrors map[string]string

// MountRoutes registers the server-rendered routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Group(func(r chi.Router) {
		r.Use(h.tenancyMW.RequireModify)
		r.Get("/new", h.showForm)
		r.Post("/", h.create)
		r.Get("/{id}/edit", h.showForm)
		r.Post("/{id}", h.update)
		r.Post("/{id}/archive", h.archive)
		r.Post("/{id}/restore", h.restore)
	})
}

// MountAPIRoutes registers the JSON API routes.
func (h *Handler) MountAPIRoutes(r chi.Router) {
	r.Get("/", h.apiList)
	r.Get("/{id}", h.apiGet)
	r.Group(func(r chi.Router) {
		r.Use(h.tenancyMW.RequireModifyAPI)
		r.Post("/", h.apiCreate)
		r.Put("/{id}", h.apiUpdate)
		r.Post("/{id}/archive", h.apiArchive)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	filters := ListFilters{
		Search:          r.URL.Query().Get("q"),
		IncludeArchived: r.URL.Query().Get("archived") == "1",
		Page:            pageParam(r),
		PerPage:         20,
	}
	items, total, err := h.service.List(r.Context(), p, filters)
	if err != nil {
		h.logger.Error("list announcements", slog.Any("error", err))
		h.render(w, r, "pages/announcements/list.html", map[string]any{"Errors": formErrors{"general": shared.UserSafeMessage(err)}}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/announcements/list.html", map[string]any{
		"Announcements": items,
		"Search":        filters.Search,
		"ShowArchived":  filters.IncludeArchived,
		"CanModify":     tenancy.CanModify(p),
		"Pagination":    shared.NewPagination(filters.Page, filters.PerPage, total),
	}, http.StatusOK)
}

func (h *Handler) showForm(w http.ResponseWriter, r *http.Request) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	a := Announcement{Priority: PriorityNormal}
	action := "/announcements"
	if raw := chi.URLParam(r, "id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		a, err = h.service.Get(r.Context(), p, id)
		if err != nil {
			h.redirectWithFlash(w, r, "/announcements", "error", shared.UserSafeMessage(err))
			return
		}
		action = "/announcements/" + raw
	}
	expires := ""
	if a.ExpiresAt != nil {
		expires = a.ExpiresAt.Format("2006-01-02")
	}
	h.render(w, r, "pages/announcements/form.html", map[string]any{
		"Announcement": a,
		"Action":       action,
		"ExpiresValue": expires,
		"Errors":       formErrors{},
	}, http.StatusOK)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	in, errs := h.bindForm(r)
	if len(errs) > 0 {
		h.render(w, r, "pages/announcements/form.html", map[string]any{"Announcement": Announcement{Title: in.Title, Body: in.Body, Priority: in.Priority}, "Action": "/announcements", "ExpiresValue": r.PostFormValue("expires_at"), "Errors": errs}, http.StatusBadRequest)
		return
	}
	if _, err := h.service.Create(r.Context(), p, in); err != nil {
		h.writeError(w, r, err, "/announcements")
		return
	}
	h.redirectWithFlash(w, r, "/announcements", "success", "Announcement published")
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	in, errs := h.bindForm(r)
	if len(errs) > 0 {
		h.render(w, r, "pages/announcements/form.html", map[string]any{"Announcement": Announcement{ID: id, Title: in.Title, Body: in.Body, Priority: in.Priority}, "Action": r.URL.Path, "ExpiresValue": r.PostFormValue("expires_at"), "Errors": errs}, http.StatusBadRequest)
		return
	}
	if _, err := h.service.Update(r.Context(), p, id, in); err != nil {
		h.writeError(w, r, err, "/announcements")
		return
	}
	h.redirectWithFlash(w, r, "/announcements", "success", "Announcement updated")
}

func (h *Handler) archive(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, true)
}

func (h *Handler) restore(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, false)
}

func (h *Handler) setArchived(w http.ResponseWriter, r *http.Request, archived bool) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if archived {
		err = h.service.Archive(r.Context(), p, id)
	} else {
		err = h.service.Restore(r.Context(), p, id)
	}
	if err != nil {
		h.writeError(w, r, err, "/announcements")
		return
	}
	msg := "Announcement archived"
	if !archived {
		msg = "Announcement restored"
	}
	h.redirectWithFlash(w, r, "/announcements", "success", msg)
}

func (h *Handler) bindForm(r *http.Request) (Input, formErrors) {
	errs := formErrors{}
	if err := r.ParseForm(); err != nil {
		errs["general"] = "Invalid form submission."
		return Input{}, errs
	}
	in := Input{
		Title:    r.PostFormValue("title"),
		Body:     r.PostFormValue("body"),
		Priority: ParsePriority(r.PostFormValue("priority")),
		IsPinned: r.PostFormValue("pinned") == "1",
	}
	if raw := r.PostFormValue("expires_at"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			errs["general"] = "Invalid expiry date."
		} else {
			in.ExpiresAt = &t
		}
	}
	if in.Title == "" {
		errs["Title"] = "Title is required."
	}
	if in.Body == "" {
		errs["Body"] = "Body is required."
	}
	return in, errs
}

// API

type announcementPayload struct {
	Title     string     `json:"title" validate:"required,max=200"`
	Body      string     `json:"body" validate:"required"`
	Priority  string     `json:"priority"`
	IsPinned  bool       `json:"is_pinned"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (h *Handler) apiList(w http.ResponseWriter, r *http.Request) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	filters := ListFilters{
		Search:          r.URL.Query().Get("q"),
		IncludeArchived: r.URL.Query().Get("archived") == "1",
		Page:            pageParam(r),
		PerPage:         20,
	}
	items, total, err := h.service.List(r.Context(), p, filters)
	if err != nil {
		h.logger.Error("api list announcements", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []Announcement{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
}

func (h *Handler) apiGet(w http.ResponseWriter, r *http.Request) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "invalid id")
		return
	}
	a, err := h.service.Get(r.Context(), p, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, a)
}

func (h *Handler) apiCreate(w http.ResponseWriter, r *http.Request) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	if key := r.Header.Get("Idempotency-Key"); key != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), key, "announcements"); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	var payload announcementPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	a, err := h.service.Create(r.Context(), p, Input{
		Title:     payload.Title,
		Body:      payload.Body,
		Priority:  ParsePriority(payload.Priority),
		IsPinned:  payload.IsPinned,
		ExpiresAt: payload.ExpiresAt,
	})
	if err != nil {
		h.respondAPIError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, a)
}

func (h *Handler) apiUpdate(w http.ResponseWriter, r *http.Request) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "invalid id")
		return
	}
	var payload announcementPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	a, err := h.service.Update(r.Context(), p, id, Input{
		Title:     payload.Title,
		Body:      payload.Body,
		Priority:  ParsePriority(payload.Priority),
		IsPinned:  payload.IsPinned,
		ExpiresAt: payload.ExpiresAt,
	})
	if err != nil {
		h.respondAPIError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, a)
}

func (h *Handler) apiArchive(w http.ResponseWriter, r *http.Request) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "invalid id")
		return
	}
	if err := h.service.Archive(r.Context(), p, id); err != nil {
		h.respondAPIError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondAPIError(w http.ResponseWriter, err error) {
	var pe *tenancy.PermissionError
	if errors.As(err, &pe) {
		h.metrics.CountDeniedWrite(string(pe.Reason))
		httpx.Problem(w, http.StatusForbidden, "Forbidden", string(pe.Reason))
		return
	}
	httpx.RespondError(w, err)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, location string) {
	var pe *tenancy.PermissionError
	if errors.As(err, &pe) {
		h.metrics.CountDeniedWrite(string(pe.Reason))
		h.redirectWithFlash(w, r, location, "error", "You are not allowed to do that: "+string(pe.Reason))
		return
	}
	h.redirectWithFlash(w, r, location, "error", shared.UserSafeMessage(err))
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: "Announcements", CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Data: data}
	w.WriteHeader(status)
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

func pageParam(r *http.Request) int {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	return page
}
