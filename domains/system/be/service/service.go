// Package service implements system-admin registration and the full
// infrastructure teardown entry point.
package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cloudward/saas-identity/domains/users/be/provisioning"
	"github.com/cloudward/saas-identity/platform/go/records"
	"github.com/cloudward/saas-identity/platform/go/usermanager"
)

// ErrAlreadyRegistered is returned when the registering user already has a
// pool record.
var ErrAlreadyRegistered = errors.New("system admin already registered")

// UserManager is the slice of the user-manager client the system flows need.
type UserManager interface {
	LookupPool(ctx context.Context, userName string) (records.UserRecord, error)
	ProvisionSystemAdmin(ctx context.Context, req usermanager.AdminRequest) (provisioning.Result, error)
	DeleteTenants(ctx context.Context) error
}

// Registration is the inbound system-admin registration payload.
type Registration struct {
	CompanyName string
	AccountName string
	OwnerName   string
	Email       string
	UserName    string
	FirstName   string
	LastName    string
}

// Service registers system admin users and tears down infrastructure.
type Service interface {
	RegisterAdmin(ctx context.Context, input Registration) (string, error)
	Teardown(ctx context.Context) error
}

type service struct {
	users   UserManager
	tenants records.TenantStore
	logger  *zap.Logger
}

// New constructs a system registration Service.
func New(users UserManager, tenants records.TenantStore, logger *zap.Logger) Service {
	if users == nil {
		panic("user manager client is required")
	}
	if tenants == nil {
		panic("tenant store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{users: users, tenants: tenants, logger: logger}
}

// RegisterAdmin provisions a system admin user under a fresh SYSADMIN tenant
// id and persists the tenant record carrying the created identifiers.
func (s *service) RegisterAdmin(ctx context.Context, input Registration) (string, error) {
	tenantID := NewSystemAdminID()
	s.logger.Debug("registering system admin", zap.String("tenant_id", tenantID), zap.String("user_name", input.UserName))

	if s.userExists(ctx, input.UserName) {
		return "", ErrAlreadyRegistered
	}

	result, err := s.users.ProvisionSystemAdmin(ctx, usermanager.AdminRequest{
		TenantID:  tenantID,
		UserName:  input.UserName,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Email:     input.Email,
	})
	if err != nil {
		return "", err
	}

	if _, err := s.tenants.Put(ctx, records.TenantRecord{
		ID:                  tenantID,
		CompanyName:         input.CompanyName,
		AccountName:         input.AccountName,
		OwnerName:           input.OwnerName,
		Tier:                provisioning.TierSystem,
		Email:               input.Email,
		Status:              records.StatusActive,
		UserPoolID:          result.UserPoolID,
		IdentityPoolID:      result.IdentityPoolID,
		SystemAdminRole:     result.AdminRoleName,
		SystemSupportRole:   result.MemberRoleName,
		TrustRole:           result.TrustRoleName,
		SystemAdminPolicy:   result.AdminPolicyARN,
		SystemSupportPolicy: result.MemberPolicyARN,
		UserName:            input.UserName,
	}); err != nil {
		return "", err
	}

	s.logger.Debug("system admin registered", zap.String("tenant_id", tenantID))
	return tenantID, nil
}

// Teardown delegates to the user manager, which removes every tenant's
// identity infrastructure.
func (s *service) Teardown(ctx context.Context) error {
	return s.users.DeleteTenants(ctx)
}

func (s *service) userExists(ctx context.Context, userName string) bool {
	record, err := s.users.LookupPool(ctx, userName)
	if err != nil {
		if !errors.Is(err, usermanager.ErrUserNotFound) {
			s.logger.Warn("user existence check failed", zap.String("user_name", userName), zap.Error(err))
		}
		return false
	}
	return record.ID == userName || record.UserName == userName
}

// NewSystemAdminID returns a fresh system-admin tenant identifier: the
// SYSADMIN prefix plus a UUID with its hyphens stripped.
func NewSystemAdminID() string {
	return "SYSADMIN" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
