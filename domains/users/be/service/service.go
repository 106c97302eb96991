// Package service implements the user-management operations: user CRUD and
// enable/disable against the identity provider, admin-user provisioning, pool
// lookup, and the infrastructure/table teardown entry points.
package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/cloudward/saas-identity/domains/users/be/provisioning"
	"github.com/cloudward/saas-identity/platform/go/auth"
	"github.com/cloudward/saas-identity/platform/go/identity"
	"github.com/cloudward/saas-identity/platform/go/records"
)

// ErrPoolNotFound is returned when the caller has no user-pool record to
// operate in.
var ErrPoolNotFound = errors.New("user pool not found")

// NewUserInput is the payload for creating a user inside the caller's tenant.
type NewUserInput struct {
	UserName  string
	FirstName string
	LastName  string
	Email     string
	Role      string
}

// AdminInput is the payload for provisioning an admin user with its roles.
type AdminInput struct {
	TenantID  string
	UserName  string
	FirstName string
	LastName  string
	Email     string
	Tier      string
}

// UpdateInput carries the mutable user attributes.
type UpdateInput struct {
	UserName  string
	FirstName string
	LastName  string
	Role      string
}

// TableNames is the managed table set removed by DeleteTables.
type TableNames struct {
	User    string
	Tenant  string
	Product string
	Order   string
}

// Service defines the user-management operations. Token-scoped operations
// take the caller's raw bearer token; provisioning and teardown run under
// system credentials.
type Service interface {
	Get(ctx context.Context, token, userID string) (identity.User, error)
	List(ctx context.Context, token string) ([]identity.User, error)
	Create(ctx context.Context, token string, input NewUserInput) error
	ProvisionSystemAdmin(ctx context.Context, input AdminInput) (provisioning.Result, error)
	ProvisionTenantAdmin(ctx context.Context, input AdminInput) (provisioning.Result, error)
	SetEnabled(ctx context.Context, token, userName string, enabled bool) error
	Update(ctx context.Context, token string, input UpdateInput) (identity.User, error)
	Delete(ctx context.Context, token, userID string) error
	LookupPool(ctx context.Context, userID string) (records.UserRecord, error)
	DeleteTables(ctx context.Context)
	DeleteTenants(ctx context.Context) error
}

type service struct {
	workflow *provisioning.Workflow
	identity identity.Client
	users    records.UserStore
	tables   records.TableAdmin
	creds    auth.Resolver
	names    TableNames
	logger   *zap.Logger
}

// New constructs a users Service instance.
func New(workflow *provisioning.Workflow, client identity.Client, users records.UserStore, tables records.TableAdmin, creds auth.Resolver, names TableNames, logger *zap.Logger) Service {
	if workflow == nil {
		panic("provisioning workflow is required")
	}
	if client == nil {
		panic("identity client is required")
	}
	if users == nil {
		panic("user store is required")
	}
	if tables == nil {
		panic("table admin is required")
	}
	if creds == nil {
		panic("credential resolver is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{
		workflow: workflow,
		identity: client,
		users:    users,
		tables:   tables,
		creds:    creds,
		names:    names,
		logger:   logger,
	}
}

func (s *service) Get(ctx context.Context, token, userID string) (identity.User, error) {
	creds, claims, err := s.caller(ctx, token)
	if err != nil {
		return identity.User{}, err
	}

	record, err := s.workflow.LookupUser(ctx, creds, userID, claims.TenantID, false)
	if err != nil {
		return identity.User{}, err
	}

	return s.identity.GetUser(ctx, creds, record.UserPoolID, userID)
}

func (s *service) List(ctx context.Context, token string) ([]identity.User, error) {
	creds, claims, err := s.caller(ctx, token)
	if err != nil {
		return nil, err
	}
	if claims.UserPoolID == "" {
		return nil, auth.ErrInvalidToken
	}

	return s.identity.ListUsers(ctx, creds, claims.UserPoolID)
}

// Create adds a user inside the requesting caller's tenant. The pool
// identifiers come from the requesting user's own record, so every user is
// created in the context of the caller.
func (s *service) Create(ctx context.Context, token string, input NewUserInput) error {
	creds, claims, err := s.caller(ctx, token)
	if err != nil {
		return err
	}

	poolData, err := s.workflow.LookupUser(ctx, creds, claims.Email, claims.TenantID, false)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			return ErrPoolNotFound
		}
		return err
	}

	_, err = s.workflow.CreateUser(ctx, creds, poolData.UserPoolID, poolData.IdentityPoolID, poolData.ClientID, claims.TenantID, provisioning.User{
		TenantID:  claims.TenantID,
		UserName:  input.UserName,
		Email:     input.Email,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Tier:      claims.Tier,
		Role:      input.Role,
	})
	if err != nil {
		return err
	}

	s.logger.Debug("user created", zap.String("user_name", input.UserName), zap.String("tenant_id", claims.TenantID))
	return nil
}

func (s *service) ProvisionSystemAdmin(ctx context.Context, input AdminInput) (provisioning.Result, error) {
	creds, err := s.creds.System(ctx)
	if err != nil {
		return provisioning.Result{}, err
	}

	return s.workflow.ProvisionAdminUser(ctx, creds, provisioning.User{
		TenantID:  input.TenantID,
		UserName:  input.UserName,
		Email:     input.Email,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Tier:      provisioning.TierSystem,
	}, provisioning.RoleSystemAdmin, provisioning.RoleSystemUser)
}

func (s *service) ProvisionTenantAdmin(ctx context.Context, input AdminInput) (provisioning.Result, error) {
	creds, err := s.creds.System(ctx)
	if err != nil {
		return provisioning.Result{}, err
	}

	return s.workflow.ProvisionAdminUser(ctx, creds, provisioning.User{
		TenantID:  input.TenantID,
		UserName:  input.UserName,
		Email:     input.Email,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Tier:      input.Tier,
	}, provisioning.RoleTenantAdmin, provisioning.RoleTenantUser)
}

func (s *service) SetEnabled(ctx context.Context, token, userName string, enabled bool) error {
	creds, claims, err := s.caller(ctx, token)
	if err != nil {
		return err
	}

	record, err := s.workflow.LookupUser(ctx, creds, userName, claims.TenantID, false)
	if err != nil {
		return err
	}

	return s.identity.SetUserEnabled(ctx, creds, record.UserPoolID, userName, enabled)
}

func (s *service) Update(ctx context.Context, token string, input UpdateInput) (identity.User, error) {
	creds, claims, err := s.caller(ctx, token)
	if err != nil {
		return identity.User{}, err
	}
	if claims.UserPoolID == "" {
		return identity.User{}, auth.ErrInvalidToken
	}

	if err := s.identity.UpdateUser(ctx, creds, claims.UserPoolID, identity.UserUpdate{
		UserName:  input.UserName,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Role:      input.Role,
	}); err != nil {
		return identity.User{}, err
	}

	return s.identity.GetUser(ctx, creds, claims.UserPoolID, input.UserName)
}

// Delete removes the user from the identity provider first, then from the
// record store. A store failure after the provider delete leaves a dangling
// record; the error is surfaced.
func (s *service) Delete(ctx context.Context, token, userID string) error {
	creds, claims, err := s.caller(ctx, token)
	if err != nil {
		return err
	}

	record, err := s.workflow.LookupUser(ctx, creds, userID, claims.TenantID, false)
	if err != nil {
		return err
	}

	if err := s.identity.DeleteUser(ctx, creds, record.UserPoolID, userID); err != nil {
		return &provisioning.UpstreamError{Step: "delete user", Err: err}
	}

	if err := s.users.Delete(ctx, claims.TenantID, userID); err != nil {
		return &provisioning.PersistenceError{Err: err}
	}
	return nil
}

func (s *service) LookupPool(ctx context.Context, userID string) (records.UserRecord, error) {
	creds, err := s.creds.System(ctx)
	if err != nil {
		return records.UserRecord{}, err
	}

	return s.workflow.LookupUser(ctx, creds, userID, "", true)
}

// DeleteTables kicks off removal of the managed tables and returns without
// waiting. Per-table failures are logged, never surfaced to the caller.
func (s *service) DeleteTables(ctx context.Context) {
	background := context.WithoutCancel(ctx)
	for _, name := range []string{s.names.User, s.names.Tenant, s.names.Product, s.names.Order} {
		go func(table string) {
			if err := s.tables.DeleteTable(background, table); err != nil {
				s.logger.Error("error deleting table", zap.String("table", table), zap.Error(err))
			}
		}(name)
	}
}

func (s *service) DeleteTenants(ctx context.Context) error {
	return s.workflow.DeleteTenantInfrastructure(ctx)
}

func (s *service) caller(ctx context.Context, token string) (auth.Credentials, auth.Claims, error) {
	if token == "" {
		return auth.Credentials{}, auth.Claims{}, auth.ErrNoToken
	}

	claims, err := auth.DecodeClaims(token)
	if err != nil {
		return auth.Credentials{}, auth.Claims{}, err
	}

	creds, err := s.creds.FromToken(ctx, token)
	if err != nil {
		return auth.Credentials{}, auth.Claims{}, err
	}

	return creds, claims, nil
}
