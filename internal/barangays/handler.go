package barangays

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/barangaykms/barangaykms/internal/observability"
	"github.com/barangaykms/barangaykms/internal/platform/httpx"
	"github.com/barangaykms/barangaykms/internal/shared"
	"github.com/barangaykms/barangaykms/internal/tenancy"
	"github.com/barangaykms/barangaykms/internal/view"
)

// Handler serves the barangay directory pages and the JSON API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	tenancyMW tenancy.Middleware
	metrics   *observability.Metrics
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, tenancyMW tenancy.Middleware, metrics *observability.Metrics) *Handler {
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, tenancyMW: tenancyMW, metrics: metrics}
}

type formErrors map[string]string

// MountRoutes registers the server-rendered routes. Mutations reach the
// service for any modifying role; the super admin check lives there so the
// API and the pages cannot drift apart.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Group(func(r chi.Router) {
		r.Use(h.tenancyMW.RequireModify)
		r.Get("/new", h.showForm)
		r.Post("/", h.create)
		r.Get("/{id}/edit", h.showForm)
		r.Post("/{id}", h.update)
		r.Post("/{id}/deactivate", h.deactivate)
		r.Post("/{id}/activate", h.activate)
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
		r.Post("/{id}/deactivate", h.apiDeactivate)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	filters := ListFilters{
		Search:          r.URL.Query().Get("q"),
		IncludeInactive: r.URL.Query().Get("inactive") == "1",
		Page:            pageParam(r),
		PerPage:         20,
	}
	items, total, err := h.service.List(r.Context(), p, filters)
	if err != nil {
		h.logger.Error("list barangays", slog.Any("error", err))
		h.render(w, r, "pages/barangays/list.html", map[string]any{"Errors": formErrors{"general": shared.UserSafeMessage(err)}}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/barangays/list.html", map[string]any{
		"Barangays":    items,
		"Search":       filters.Search,
		"ShowInactive": filters.IncludeInactive,
		"CanManage":    tenancy.IsSuperAdmin(p),
		"Pagination":   shared.NewPagination(filters.Page, filters.PerPage, total),
	}, http.StatusOK)
}

func (h *Handler) showForm(w http.ResponseWriter, r *http.Request) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	b := Barangay{}
	action := "/barangays"
	if raw := chi.URLParam(r, "id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		b, err = h.service.Get(r.Context(), p, id)
		if err != nil {
			h.redirectWithFlash(w, r, "/barangays", "error", shared.UserSafeMessage(err))
			return
		}
		action = "/barangays/" + raw
	}
	h.render(w, r, "pages/barangays/form.html", map[string]any{
		"Barangay": b,
		"Action":   action,
		"Errors":   formErrors{},
	}, http.StatusOK)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	in, errs := h.bindForm(r)
	if len(errs) > 0 {
		h.render(w, r, "pages/barangays/form.html", map[string]any{"Barangay": Barangay{Name: in.Name, Code: in.Code, Municipality: in.Municipality, Province: in.Province, ContactEmail: in.ContactEmail}, "Action": "/barangays", "Errors": errs}, http.StatusBadRequest)
		return
	}
	if _, err := h.service.Create(r.Context(), p, in); err != nil {
		if errors.Is(err, shared.ErrDuplicate) {
			h.redirectWithFlash(w, r, "/barangays/new", "error", "A barangay with that code already exists.")
			return
		}
		h.writeError(w, r, err, "/barangays")
		return
	}
	h.redirectWithFlash(w, r, "/barangays", "success", "Barangay registered")
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
		h.render(w, r, "pages/barangays/form.html", map[string]any{"Barangay": Barangay{ID: id, Name: in.Name, Code: in.Code, Municipality: in.Municipality, Province: in.Province, ContactEmail: in.ContactEmail}, "Action": r.URL.Path, "Errors": errs}, http.StatusBadRequest)
		return
	}
	if _, err := h.service.Update(r.Context(), p, id, in); err != nil {
		h.writeError(w, r, err, "/barangays")
		return
	}
	h.redirectWithFlash(w, r, "/barangays", "success", "Barangay updated")
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if active {
		err = h.service.Activate(r.Context(), p, id)
	} else {
		err = h.service.Deactivate(r.Context(), p, id)
	}
	if err != nil {
		h.writeError(w, r, err, "/barangays")
		return
	}
	msg := "Barangay deactivated"
	if active {
		msg = "Barangay activated"
	}
	h.redirectWithFlash(w, r, "/barangays", "success", msg)
}

func (h *Handler) bindForm(r *http.Request) (Input, formErrors) {
	errs := formErrors{}
	if err := r.ParseForm(); err != nil {
		errs["general"] = "Invalid form submission."
		return Input{}, errs
	}
	in := Input{
		Name:         r.PostFormValue("name"),
		Code:         r.PostFormValue("code"),
		Municipality: r.PostFormValue("municipality"),
		Province:     r.PostFormValue("province"),
		ContactEmail: r.PostFormValue("contact_email"),
	}
	if in.Name == "" {
		errs["Name"] = "Name is required."
	}
	if in.Code == "" {
		errs["Code"] = "Code is required."
	}
	return in, errs
}

// API

type barangayPayload struct {
	Name         string `json:"name" validate:"required,max=120"`
	Code         string `json:"code" validate:"required,max=20"`
	Municipality string `json:"municipality" validate:"max=120"`
	Province     string `json:"province" validate:"max=120"`
	ContactEmail string `json:"contact_email" validate:"omitempty,email"`
}

func (h *Handler) apiList(w http.ResponseWriter, r *http.Request) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	filters := ListFilters{
		Search:          r.URL.Query().Get("q"),
		IncludeInactive: r.URL.Query().Get("inactive") == "1",
		Page:            pageParam(r),
		PerPage:         20,
	}
	items, total, err := h.service.List(r.Context(), p, filters)
	if err != nil {
		h.logger.Error("api list barangays", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []Barangay{}
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
	b, err := h.service.Get(r.Context(), p, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func (h *Handler) apiCreate(w http.ResponseWriter, r *http.Request) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	var payload barangayPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	b, err := h.service.Create(r.Context(), p, Input{
		Name:         payload.Name,
		Code:         payload.Code,
		Municipality: payload.Municipality,
		Province:     payload.Province,
		ContactEmail: payload.ContactEmail,
	})
	if err != nil {
		h.respondAPIError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, b)
}

func (h *Handler) apiUpdate(w http.ResponseWriter, r *http.Request) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "invalid id")
		return
	}
	var payload barangayPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	b, err := h.service.Update(r.Context(), p, id, Input{
		Name:         payload.Name,
		Code:         payload.Code,
		Municipality: payload.Municipality,
		Province:     payload.Province,
		ContactEmail: payload.ContactEmail,
	})
	if err != nil {
		h.respondAPIError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func (h *Handler) apiDeactivate(w http.ResponseWriter, r *http.Request) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "invalid id")
		return
	}
	if err := h.service.Deactivate(r.Context(), p, id); err != nil {
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
	viewData := view.TemplateData{Title: "Barangays", CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Data: data}
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
