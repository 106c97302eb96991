// Package handler exposes the tenant-registration HTTP surface.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/cloudward/saas-identity/domains/tenants/be/service"
	platformlogging "github.com/cloudward/saas-identity/platform/go/logging"
)

const serviceName = "Tenant Registration"

// Handler wires the tenant registration service to its routes.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("tenants service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the registration routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/reg", h.registerTenant)
	r.Get("/reg/health", h.health)
}

type registrationRequest struct {
	CompanyName string `json:"companyName"`
	AccountName string `json:"accountName"`
	OwnerName   string `json:"ownerName"`
	Tier        string `json:"tier"`
	Email       string `json:"email"`
	UserName    string `json:"userName"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
}

func (h *Handler) registerTenant(w http.ResponseWriter, r *http.Request) {
	var body registrationRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeText(w, http.StatusBadRequest, "Error registering tenant: "+err.Error())
		return
	}

	tenantID, err := h.svc.Register(r.Context(), service.Registration{
		CompanyName: body.CompanyName,
		AccountName: body.AccountName,
		OwnerName:   body.OwnerName,
		Tier:        body.Tier,
		Email:       body.Email,
		UserName:    body.UserName,
		FirstName:   body.FirstName,
		LastName:    body.LastName,
	})
	if err != nil {
		logger := platformlogging.FromRequest(r, h.logger)
		logger.Warn("tenant registration failed", zap.String("user_name", body.UserName), zap.Error(err))

		if errors.Is(err, service.ErrAlreadyRegistered) {
			writeText(w, http.StatusBadRequest, "Error registering new tenant")
			return
		}
		writeText(w, http.StatusBadRequest, "Error registering tenant: "+err.Error())
		return
	}

	writeText(w, http.StatusOK, "Tenant "+tenantID+" registered")
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{"service": serviceName, "isAlive": true})
}

func writeText(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(message))
}
