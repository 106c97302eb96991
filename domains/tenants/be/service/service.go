// Package service implements tenant registration: id generation, the
// existence check against the user manager, admin-user provisioning, and
// persistence of the tenant record.
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
var ErrAlreadyRegistered = errors.New("tenant already registered")

// UserManager is the slice of the user-manager client the registration flow
// needs.
type UserManager interface {
	LookupPool(ctx context.Context, userName string) (records.UserRecord, error)
	ProvisionTenantAdmin(ctx context.Context, req usermanager.AdminRequest) (provisioning.Result, error)
}

// Registration is the inbound tenant-registration payload.
type Registration struct {
	CompanyName string
	AccountName string
	OwnerName   string
	Tier        string
	Email       string
	UserName    string
	FirstName   string
	LastName    string
}

// Service registers tenants.
type Service interface {
	Register(ctx context.Context, input Registration) (string, error)
}

type service struct {
	users   UserManager
	tenants records.TenantStore
	logger  *zap.Logger
}

// New constructs a tenant registration Service.
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

// Register creates a tenant: a fresh prefixed id, the provisioned admin user
// with its roles and policies, and a tenant record carrying every identifier
// teardown later needs.
func (s *service) Register(ctx context.Context, input Registration) (string, error) {
	tenantID := NewTenantID()
	s.logger.Debug("registering tenant", zap.String("tenant_id", tenantID), zap.String("user_name", input.UserName))

	if s.userExists(ctx, input.UserName) {
		return "", ErrAlreadyRegistered
	}

	result, err := s.users.ProvisionTenantAdmin(ctx, usermanager.AdminRequest{
		TenantID:  tenantID,
		UserName:  input.UserName,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Email:     input.Email,
		Tier:      input.Tier,
	})
	if err != nil {
		return "", err
	}

	if _, err := s.tenants.Put(ctx, records.TenantRecord{
		ID:                  tenantID,
		CompanyName:         input.CompanyName,
		AccountName:         input.AccountName,
		OwnerName:           input.OwnerName,
		Tier:                input.Tier,
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

	s.logger.Debug("tenant registered", zap.String("tenant_id", tenantID))
	return tenantID, nil
}

// userExists asks the user manager for the user's pool record. Lookup
// failures count as "does not exist" so a flaky user manager cannot block
// registration outright.
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

// NewTenantID returns a fresh tenant identifier: the TENANT prefix plus a
// UUID with its hyphens stripped.
func NewTenantID() string {
	return "TENANT" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
