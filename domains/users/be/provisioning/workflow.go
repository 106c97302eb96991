// Package provisioning implements the multi-step admin-user provisioning
// workflow: the ordered creation of a tenant's user pool, identity pool,
// policies, roles, and admin user, plus the matching teardown chain.
package provisioning

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cloudward/saas-identity/platform/go/auth"
	"github.com/cloudward/saas-identity/platform/go/identity"
	"github.com/cloudward/saas-identity/platform/go/records"
)

// Role kinds instantiated per tenant. The admin kind names the elevated
// policy/role pair, the user kind the standard one.
const (
	RoleSystemAdmin = "SystemAdmin"
	RoleSystemUser  = "SystemUser"
	RoleTenantAdmin = "TenantAdmin"
	RoleTenantUser  = "TenantUser"
)

// TierSystem is the tier stamped on system admin users.
const TierSystem = "System"

// ErrAlreadyExists is returned when the user being provisioned already has a
// pool record.
var ErrAlreadyExists = errors.New("user already exists")

// UpstreamError wraps an identity-provider call failure with the step that
// issued it. Resources created by earlier steps are not rolled back.
type UpstreamError struct {
	Step string
	Err  error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("identity provider call failed (%s): %v", e.Step, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// PersistenceError wraps a record-store write failure.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("record store write failed: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// User carries the attributes of the user being provisioned.
type User struct {
	TenantID  string
	UserName  string
	Email     string
	FirstName string
	LastName  string
	Tier      string
	Role      string
}

// Result accumulates every identifier produced during one workflow run. It is
// consumed by the caller (persisted into a tenant record or returned on the
// wire) and then discarded.
type Result struct {
	UserPoolID      string `json:"userPoolId"`
	UserPoolName    string `json:"userPoolName"`
	ClientID        string `json:"clientId"`
	IdentityPoolID  string `json:"identityPoolId"`
	AdminRoleName   string `json:"adminRoleName"`
	AdminRoleARN    string `json:"adminRoleArn"`
	MemberRoleName  string `json:"memberRoleName"`
	MemberRoleARN   string `json:"memberRoleArn"`
	TrustRoleName   string `json:"trustRoleName"`
	TrustRoleARN    string `json:"trustRoleArn"`
	AdminPolicyARN  string `json:"adminPolicyArn"`
	MemberPolicyARN string `json:"memberPolicyArn"`
}

// Config carries the environment facts embedded in rendered policy documents.
type Config struct {
	AccountID    string
	Region       string
	TenantTable  string
	UserTable    string
	ProductTable string
	OrderTable   string
}

// Workflow drives the ordered resource-creation sequence. Steps are strictly
// sequential: each step's output is a hard input to a later step, and the
// first failure aborts the remainder.
type Workflow struct {
	identity identity.Client
	users    records.UserStore
	tenants  records.TenantStore
	cfg      Config
	logger   *zap.Logger
}

// NewWorkflow constructs a Workflow with required dependencies.
func NewWorkflow(client identity.Client, users records.UserStore, tenants records.TenantStore, cfg Config, logger *zap.Logger) *Workflow {
	if client == nil {
		panic("identity client is required")
	}
	if users == nil {
		panic("user store is required")
	}
	if tenants == nil {
		panic("tenant store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Workflow{identity: client, users: users, tenants: tenants, cfg: cfg, logger: logger}
}

// ProvisionAdminUser creates a fully-provisioned admin user together with the
// admin and member roles/policies it needs, in dependency order, and returns
// the identifiers of everything created. There is no compensation: a failure
// partway leaves earlier-created identity resources behind (removed later by
// teardown).
func (w *Workflow) ProvisionAdminUser(ctx context.Context, creds auth.Credentials, user User, adminKind, memberKind string) (Result, error) {
	user.Role = adminKind

	// Existence check happens before any resource creation.
	if _, err := w.LookupUser(ctx, creds, user.UserName, user.TenantID, true); err == nil {
		return Result{}, ErrAlreadyExists
	} else if !errors.Is(err, records.ErrNotFound) {
		return Result{}, err
	}

	pool, err := w.identity.CreateUserPool(ctx, user.TenantID)
	if err != nil {
		return Result{}, &UpstreamError{Step: "create user pool", Err: err}
	}

	client, err := w.identity.CreateUserPoolClient(ctx, pool.ID, pool.Name)
	if err != nil {
		return Result{}, &UpstreamError{Step: "create user pool client", Err: err}
	}

	identityPool, err := w.identity.CreateIdentityPool(ctx, client.UserPoolID, client.ClientID, client.Name)
	if err != nil {
		return Result{}, &UpstreamError{Step: "create identity pool", Err: err}
	}

	// The trust policy embeds the identity pool id just created; all three
	// roles below share it.
	trustDoc, err := identity.TrustPolicyDocument(identityPool.ID)
	if err != nil {
		return Result{}, fmt.Errorf("render trust policy: %w", err)
	}

	params := identity.PolicyParams{
		TenantID:     user.TenantID,
		AccountID:    w.cfg.AccountID,
		Region:       w.cfg.Region,
		UserPoolID:   pool.ID,
		TenantTable:  w.cfg.TenantTable,
		UserTable:    w.cfg.UserTable,
		ProductTable: w.cfg.ProductTable,
		OrderTable:   w.cfg.OrderTable,
	}

	adminDoc, err := identity.AdminPolicyDocument(params)
	if err != nil {
		return Result{}, fmt.Errorf("render admin policy: %w", err)
	}
	adminPolicy, err := w.identity.CreatePolicy(ctx, policyName(user.TenantID, adminKind), adminDoc)
	if err != nil {
		return Result{}, &UpstreamError{Step: "create admin policy", Err: err}
	}

	if _, err := w.CreateUser(ctx, creds, pool.ID, identityPool.ID, client.ClientID, user.TenantID, user); err != nil {
		return Result{}, err
	}

	memberDoc, err := identity.MemberPolicyDocument(params)
	if err != nil {
		return Result{}, fmt.Errorf("render member policy: %w", err)
	}
	memberPolicy, err := w.identity.CreatePolicy(ctx, policyName(user.TenantID, memberKind), memberDoc)
	if err != nil {
		return Result{}, &UpstreamError{Step: "create member policy", Err: err}
	}

	adminRole, err := w.identity.CreateRole(ctx, roleName(user.TenantID, adminKind), trustDoc)
	if err != nil {
		return Result{}, &UpstreamError{Step: "create admin role", Err: err}
	}

	memberRole, err := w.identity.CreateRole(ctx, roleName(user.TenantID, memberKind), trustDoc)
	if err != nil {
		return Result{}, &UpstreamError{Step: "create member role", Err: err}
	}

	trustRole, err := w.identity.CreateRole(ctx, trustRoleName(user.TenantID), trustDoc)
	if err != nil {
		return Result{}, &UpstreamError{Step: "create trust role", Err: err}
	}

	if err := w.identity.AttachRolePolicy(ctx, adminPolicy.ARN, adminRole.Name); err != nil {
		return Result{}, &UpstreamError{Step: "attach admin policy", Err: err}
	}

	if err := w.identity.AttachRolePolicy(ctx, memberPolicy.ARN, memberRole.Name); err != nil {
		return Result{}, &UpstreamError{Step: "attach member policy", Err: err}
	}

	if err := w.identity.SetIdentityPoolRoles(ctx, identity.RoleBinding{
		IdentityPoolID: identityPool.ID,
		UserPoolID:     client.UserPoolID,
		ClientID:       client.ClientID,
		TrustRoleARN:   trustRole.ARN,
		AdminRoleARN:   adminRole.ARN,
		MemberRoleARN:  memberRole.ARN,
		AdminRoleKind:  adminKind,
		MemberRoleKind: memberKind,
	}); err != nil {
		return Result{}, &UpstreamError{Step: "bind roles to identity pool", Err: err}
	}

	w.logger.Debug("admin user provisioned",
		zap.String("tenant_id", user.TenantID),
		zap.String("user_name", user.UserName),
		zap.String("user_pool_id", pool.ID),
	)

	return Result{
		UserPoolID:      pool.ID,
		UserPoolName:    pool.Name,
		ClientID:        client.ClientID,
		IdentityPoolID:  identityPool.ID,
		AdminRoleName:   adminRole.Name,
		AdminRoleARN:    adminRole.ARN,
		MemberRoleName:  memberRole.Name,
		MemberRoleARN:   memberRole.ARN,
		TrustRoleName:   trustRole.Name,
		TrustRoleARN:    trustRole.ARN,
		AdminPolicyARN:  adminPolicy.ARN,
		MemberPolicyARN: memberPolicy.ARN,
	}, nil
}

// CreateUser creates the user in the identity provider first and persists the
// derived record only on success. A record-store failure after a successful
// provider create leaves the provider-side user orphaned; that gap is
// surfaced, not masked.
func (w *Workflow) CreateUser(ctx context.Context, creds auth.Credentials, userPoolID, identityPoolID, clientID, tenantID string, user User) (records.UserRecord, error) {
	if user.Email == "" {
		user.Email = user.UserName
	}

	created, err := w.identity.CreateUser(ctx, creds, identity.NewUser{
		UserPoolID: userPoolID,
		UserName:   user.UserName,
		Email:      user.Email,
		FirstName:  user.FirstName,
		LastName:   user.LastName,
		Role:       user.Role,
		Tier:       user.Tier,
		TenantID:   tenantID,
	})
	if err != nil {
		return records.UserRecord{}, &UpstreamError{Step: "create user", Err: err}
	}

	record := records.UserRecord{
		ID:             user.UserName,
		TenantID:       tenantID,
		UserName:       user.UserName,
		Tier:           user.Tier,
		Role:           user.Role,
		UserPoolID:     userPoolID,
		IdentityPoolID: identityPoolID,
		ClientID:       clientID,
		Sub:            created.Sub,
		FirstName:      user.FirstName,
		LastName:       user.LastName,
		Email:          user.Email,
	}

	stored, err := w.users.Put(ctx, record)
	if err != nil {
		return records.UserRecord{}, &PersistenceError{Err: err}
	}
	return stored, nil
}

// LookupUser fetches a user's pool record. In system context the bare id is
// queried against the secondary index across all tenants and the first match
// wins (multiple matches are not disambiguated); in tenant context the record
// is fetched by direct (tenant, id) key.
func (w *Workflow) LookupUser(ctx context.Context, creds auth.Credentials, userID, tenantID string, systemContext bool) (records.UserRecord, error) {
	if systemContext {
		matches, err := w.users.QueryByID(ctx, userID)
		if err != nil {
			return records.UserRecord{}, fmt.Errorf("lookup user %q: %w", userID, err)
		}
		if len(matches) == 0 {
			return records.UserRecord{}, records.ErrNotFound
		}
		return matches[0], nil
	}

	return w.users.Get(ctx, tenantID, userID)
}

// DeleteTenantInfrastructure removes the identity resources of every tenant
// that has them, one tenant at a time. A failure in one tenant's chain aborts
// the whole loop with that tenant's error; remaining tenants keep their
// resources.
func (w *Workflow) DeleteTenantInfrastructure(ctx context.Context) error {
	tenants, err := w.tenants.ListWithInfrastructure(ctx)
	if err != nil {
		return fmt.Errorf("list tenant infrastructure: %w", err)
	}

	w.logger.Debug("tenants with infrastructure", zap.Int("count", len(tenants)))

	for _, tenant := range tenants {
		if err := w.deleteTenantChain(ctx, tenant); err != nil {
			return err
		}
		w.logger.Debug("tenant infrastructure removed", zap.String("tenant_id", tenant.ID))
	}
	return nil
}

// deleteTenantChain issues the per-tenant deletion calls in the fixed order:
// user pool, identity pool, both policy detachments, both policy deletes, all
// three role deletes.
func (w *Workflow) deleteTenantChain(ctx context.Context, tenant records.TenantRecord) error {
	steps := []struct {
		name string
		call func() error
	}{
		{"delete user pool", func() error { return w.identity.DeleteUserPool(ctx, tenant.UserPoolID) }},
		{"delete identity pool", func() error { return w.identity.DeleteIdentityPool(ctx, tenant.IdentityPoolID) }},
		{"detach admin policy", func() error {
			return w.identity.DetachRolePolicy(ctx, tenant.SystemAdminPolicy, tenant.SystemAdminRole)
		}},
		{"detach support policy", func() error {
			return w.identity.DetachRolePolicy(ctx, tenant.SystemSupportPolicy, tenant.SystemSupportRole)
		}},
		{"delete admin policy", func() error { return w.identity.DeletePolicy(ctx, tenant.SystemAdminPolicy) }},
		{"delete support policy", func() error { return w.identity.DeletePolicy(ctx, tenant.SystemSupportPolicy) }},
		{"delete admin role", func() error { return w.identity.DeleteRole(ctx, tenant.SystemAdminRole) }},
		{"delete support role", func() error { return w.identity.DeleteRole(ctx, tenant.SystemSupportRole) }},
		{"delete trust role", func() error { return w.identity.DeleteRole(ctx, tenant.TrustRole) }},
	}

	for _, step := range steps {
		if err := step.call(); err != nil {
			return &UpstreamError{Step: step.name + " for tenant " + tenant.ID, Err: err}
		}
	}
	return nil
}

func policyName(tenantID, kind string) string {
	return tenantID + "-" + kind + "Policy"
}

func roleName(tenantID, kind string) string {
	return tenantID + "-" + kind
}

func trustRoleName(tenantID string) string {
	return tenantID + "-Trust"
}
