package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/barangaykms/barangaykms/internal/barangays"
	"github.com/barangaykms/barangaykms/internal/observability"
	"github.com/barangaykms/barangaykms/internal/platform/httpx"
	"github.com/barangaykms/barangaykms/internal/shared"
	"github.com/barangaykms/barangaykms/internal/tenancy"
	"github.com/barangaykms/barangaykms/internal/view"
)

// Handler serves the account administration pages and the JSON API.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	barangaySvc *barangays.Service
	templates   *view.Engine
	csrf        *shared.CSRFManager
	tenancyMW   tenancy.Middleware
	metrics     *observability.Metrics
}

// NewHandler builds a Handler instance. The barangay service feeds the
// assignment dropdown on the form.
func NewHandler(logger *slog.Logger, service *Service, barangaySvc *barangays.Service, templates *view.Engine, csrf *shared.CSRFManager, tenancyMW tenancy.Middleware, metrics *observability.Metrics) *Handler {
	return &Handler{logger: logger, service: service, barangaySvc: barangaySvc, templates: templates, csrf: csrf, tenancyMW: tenancyMW, metrics: metrics}
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
		Search:  r.URL.Query().Get("q"),
		Role:    r.URL.Query().Get("role"),
		Page:    pageParam(r),
		PerPage: 20,
	}
	items, total, err := h.service.List(r.Context(), p, filters)
	if err != nil {
		h.logger.Error("list accounts", slog.Any("error", err))
		h.render(w, r, "pages/users/list.html", map[string]any{"Errors": formErrors{"general": shared.UserSafeMessage(err)}}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/users/list.html", map[string]any{
		"Accounts":   items,
		"Search":     filters.Search,
		"RoleFilter": filters.Role,
		"CanManage":  tenancy.IsSuperAdmin(p),
		"Pagination": shared.NewPagination(filters.Page, filters.PerPage, total),
	}, http.StatusOK)
}

func (h *Handler) showForm(w http.ResponseWriter, r *http.Request) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	a := Account{}
	action := "/users"
	if raw := chi.URLParam(r, "id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		a, err = h.service.Get(r.Context(), p, id)
		if err != nil {
			h.redirectWithFlash(w, r, "/users", "error", shared.UserSafeMessage(err))
			return
		}
		action = "/users/" + raw
	}
	brgys, _, err := h.barangaySvc.List(r.Context(), p, barangays.ListFilters{})
	if err != nil {
		h.logger.Warn("load barangay options", slog.Any("error", err))
	}
	h.render(w, r, "pages/users/form.html", map[string]any{
		"Account":   a,
		"Action":    action,
		"IsEdit":    a.ID != 0,
		"Roles":     roleOptions(),
		"Barangays": brgys,
		"Errors":    formErrors{},
	}, http.StatusOK)
}

func roleOptions() []string {
	return []string{
		string(tenancy.RoleSuperAdmin),
		string(tenancy.RoleBarangayAdmin),
		string(tenancy.RoleBarangaySecretary),
		string(tenancy.RoleBarangayStaff),
		string(tenancy.RoleCouncilMember),
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	in, errs := h.bindForm(r)
	if len(errs) > 0 {
		h.redirectWithFlash(w, r, "/users/new", "error", "Check the form and try again.")
		return
	}
	if _, err := h.service.Create(r.Context(), p, in); err != nil {
		if errors.Is(err, shared.ErrDuplicate) {
			h.redirectWithFlash(w, r, "/users/new", "error", "An account with that email already exists.")
			return
		}
		h.writeError(w, r, err, "/users")
		return
	}
	h.redirectWithFlash(w, r, "/users", "success", "Account created")
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
		h.redirectWithFlash(w, r, r.URL.Path+"/edit", "error", "Check the form and try again.")
		return
	}
	if _, err := h.service.Update(r.Context(), p, id, in); err != nil {
		h.writeError(w, r, err, "/users")
		return
	}
	h.redirectWithFlash(w, r, "/users", "success", "Account updated")
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
		h.writeError(w, r, err, "/users")
		return
	}
	msg := "Account deactivated"
	if active {
		msg = "Account activated"
	}
	h.redirectWithFlash(w, r, "/users", "success", msg)
}

func (h *Handler) bindForm(r *http.Request) (Input, formErrors) {
	errs := formErrors{}
	if err := r.ParseForm(); err != nil {
		errs["general"] = "Invalid form submission."
		return Input{}, errs
	}
	in := Input{
		Email:    r.PostFormValue("email"),
		Name:     r.PostFormValue("name"),
		Password: r.PostFormValue("password"),
		Role:     r.PostFormValue("role"),
	}
	if raw := r.PostFormValue("barangay_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			errs["BarangayID"] = "Invalid barangay."
		} else {
			in.BarangayID = &id
		}
	}
	if in.Email == "" {
		errs["Email"] = "Email is required."
	}
	if in.Name == "" {
		errs["Name"] = "Name is required."
	}
	return in, errs
}

// API

type accountPayload struct {
	Email      string `json:"email" validate:"required,email"`
	Name       string `json:"name" validate:"required,max=120"`
	Password   string `json:"password,omitempty"`
	Role       string `json:"role" validate:"required"`
	BarangayID *int64 `json:"barangay_id"`
}

func (h *Handler) apiList(w http.ResponseWriter, r *http.Request) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	filters := ListFilters{
		Search:  r.URL.Query().Get("q"),
		Role:    r.URL.Query().Get("role"),
		Page:    pageParam(r),
		PerPage: 20,
	}
	items, total, err := h.service.List(r.Context(), p, filters)
	if err != nil {
		h.logger.Error("api list accounts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []Account{}
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
	var payload accountPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	a, err := h.service.Create(r.Context(), p, Input{
		Email:      payload.Email,
		Name:       payload.Name,
		Password:   payload.Password,
		Role:       payload.Role,
		BarangayID: payload.BarangayID,
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
	var payload accountPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	a, err := h.service.Update(r.Context(), p, id, Input{
		Email:      payload.Email,
		Name:       payload.Name,
		Password:   payload.Password,
		Role:       payload.Role,
		BarangayID: payload.BarangayID,
	})
	if err != nil {
		h.respondAPIError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, a)
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
	viewData := view.TemplateData{Title: "Accounts", CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Data: data}
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
