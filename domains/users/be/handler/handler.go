// Package handler exposes the user-management HTTP surface.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/cloudward/saas-identity/domains/users/be/provisioning"
	"github.com/cloudward/saas-identity/domains/users/be/service"
	"github.com/cloudward/saas-identity/platform/go/auth"
	"github.com/cloudward/saas-identity/platform/go/identity"
	platformlogging "github.com/cloudward/saas-identity/platform/go/logging"
	"github.com/cloudward/saas-identity/platform/go/records"
)

// serviceName is reported by the health endpoint.
const serviceName = "User Manager"

// Handler wires the users service to its routes.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("users service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the user-management routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/user/health", h.health)
	r.Delete("/user/tables", h.deleteTables)
	r.Delete("/user/tenants", h.deleteTenants)
	r.Get("/user/pool/{id}", h.lookupPool)
	r.Get("/user/{id}", h.getUser)
	r.Get("/users", h.listUsers)
	r.Post("/user", h.createUser)
	r.Post("/user/system", h.provisionSystemAdmin)
	r.Post("/user/reg", h.provisionTenantAdmin)
	r.Put("/user/enable", h.enableUser)
	r.Put("/user/disable", h.disableUser)
	r.Put("/user", h.updateUser)
	r.Delete("/user/{id}", h.deleteUser)
}

type healthResponse struct {
	Service string `json:"service"`
	IsAlive bool   `json:"isAlive"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type userResponse struct {
	UserName  string `json:"userName"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
	Tier      string `json:"tier"`
	Enabled   bool   `json:"enabled"`
	Status    string `json:"status,omitempty"`
}

type userRequest struct {
	UserName  string `json:"userName"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Role      string `json:"role"`
}

type adminRequest struct {
	TenantID  string `json:"tenant_id"`
	UserName  string `json:"userName"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Tier      string `json:"tier"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Service: serviceName, IsAlive: true})
}

func (h *Handler) deleteTables(w http.ResponseWriter, r *http.Request) {
	h.svc.DeleteTables(r.Context())
	writeText(w, http.StatusOK, "Initiated removal of DynamoDB Tables")
}

func (h *Handler) deleteTenants(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteTenants(r.Context()); err != nil {
		h.logFailure(r, "teardown failed", err)
		writeText(w, http.StatusBadRequest, err.Error())
		return
	}
	writeText(w, http.StatusOK, "Success")
}

func (h *Handler) lookupPool(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	record, err := h.svc.LookupPool(r.Context(), userID)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			writeText(w, http.StatusBadRequest, `{"Error": "User not found"}`)
			return
		}
		h.logFailure(r, "pool lookup failed", err)
		writeText(w, http.StatusBadRequest, `{"Error" : "Error getting user"}`)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	token, _ := auth.TokenFromContext(r.Context())

	user, err := h.svc.Get(r.Context(), token, userID)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) || errors.Is(err, auth.ErrNoToken) {
			writeText(w, http.StatusBadRequest, `{"Error" : "Error getting user"}`)
			return
		}
		h.logFailure(r, "user lookup failed", err)
		writeJSON(w, http.StatusBadRequest, "Error lookup user user: "+userID)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	token, _ := auth.TokenFromContext(r.Context())

	users, err := h.svc.List(r.Context(), token)
	if err != nil {
		h.logFailure(r, "user list failed", err)
		writeText(w, http.StatusBadRequest, "Error retrieving user list: "+err.Error())
		return
	}

	list := make([]userResponse, 0, len(users))
	for _, u := range users {
		list = append(list, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var body userRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeText(w, http.StatusBadRequest, `{"Error" : "Error creating user in DynamoDB"}`)
		return
	}

	token, _ := auth.TokenFromContext(r.Context())

	err := h.svc.Create(r.Context(), token, service.NewUserInput{
		UserName:  body.UserName,
		FirstName: body.FirstName,
		LastName:  body.LastName,
		Email:     body.Email,
		Role:      body.Role,
	})
	if err != nil {
		if errors.Is(err, service.ErrPoolNotFound) {
			writeText(w, http.StatusBadRequest, `{"Error" : "User pool not found"}`)
			return
		}
		h.logFailure(r, "user create failed", err)
		writeText(w, http.StatusBadRequest, `{"Error" : "Error creating user in DynamoDB"}`)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{Status: "success"})
}

func (h *Handler) provisionSystemAdmin(w http.ResponseWriter, r *http.Request) {
	var body adminRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeText(w, http.StatusBadRequest, "Error provisioning system admin user")
		return
	}

	result, err := h.svc.ProvisionSystemAdmin(r.Context(), toAdminInput(body))
	if err != nil {
		h.logFailure(r, "system admin provisioning failed", err)
		writeText(w, http.StatusBadRequest, "Error provisioning system admin user")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) provisionTenantAdmin(w http.ResponseWriter, r *http.Request) {
	var body adminRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeText(w, http.StatusBadRequest, "Error provisioning tenant admin user")
		return
	}

	result, err := h.svc.ProvisionTenantAdmin(r.Context(), toAdminInput(body))
	if err != nil {
		h.logFailure(r, "tenant admin provisioning failed", err)
		writeText(w, http.StatusBadRequest, "Error provisioning tenant admin user")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) enableUser(w http.ResponseWriter, r *http.Request) {
	h.setUserEnabled(w, r, true, "Error enabling user")
}

func (h *Handler) disableUser(w http.ResponseWriter, r *http.Request) {
	h.setUserEnabled(w, r, false, "Error disabling user")
}

func (h *Handler) setUserEnabled(w http.ResponseWriter, r *http.Request, enabled bool, failureMessage string) {
	var body userRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeText(w, http.StatusBadRequest, failureMessage)
		return
	}

	token, _ := auth.TokenFromContext(r.Context())

	if err := h.svc.SetEnabled(r.Context(), token, body.UserName, enabled); err != nil {
		h.logFailure(r, "enabled-status update failed", err)
		writeText(w, http.StatusBadRequest, failureMessage)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{Status: "success"})
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	var body userRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeText(w, http.StatusBadRequest, "Error updating user: "+err.Error())
		return
	}

	token, _ := auth.TokenFromContext(r.Context())

	updated, err := h.svc.Update(r.Context(), token, service.UpdateInput{
		UserName:  body.UserName,
		FirstName: body.FirstName,
		LastName:  body.LastName,
		Role:      body.Role,
	})
	if err != nil {
		h.logFailure(r, "user update failed", err)
		writeText(w, http.StatusBadRequest, "Error updating user: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(updated))
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	token, _ := auth.TokenFromContext(r.Context())

	err := h.svc.Delete(r.Context(), token, userID)
	if err != nil {
		h.logFailure(r, "user delete failed", err)

		var persistence *provisioning.PersistenceError
		switch {
		case errors.Is(err, records.ErrNotFound):
			writeText(w, http.StatusBadRequest, "User does not exist")
		case errors.As(err, &persistence):
			writeText(w, http.StatusBadRequest, `{"Error" : "Error deleting DynamoDB user"}`)
		default:
			writeText(w, http.StatusBadRequest, `{"Error" : "Error deleting user"}`)
		}
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{Status: "success"})
}

func toAdminInput(body adminRequest) service.AdminInput {
	return service.AdminInput{
		TenantID:  body.TenantID,
		UserName:  body.UserName,
		FirstName: body.FirstName,
		LastName:  body.LastName,
		Email:     body.Email,
		Tier:      body.Tier,
	}
}

func toUserResponse(user identity.User) userResponse {
	return userResponse{
		UserName:  user.UserName,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Role:      user.Role,
		Tier:      user.Tier,
		Enabled:   user.Enabled,
		Status:    user.Status,
	}
}

func (h *Handler) logFailure(r *http.Request, message string, err error) {
	logger := platformlogging.FromRequest(r, h.logger)
	logger.Warn(message, zap.String("path", r.URL.Path), zap.Error(err))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeText(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(message))
}
