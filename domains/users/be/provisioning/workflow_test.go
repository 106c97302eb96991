package provisioning

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cloudward/saas-identity/platform/go/auth"
	"github.com/cloudward/saas-identity/platform/go/identity"
	"github.com/cloudward/saas-identity/platform/go/records"
)

// fakeIdentity records every call in order and can be told to fail a given
// operation.
type fakeIdentity struct {
	calls    []string
	failures map[string]error

	roleDocs map[string]string
	binding  identity.RoleBinding
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{
		failures: map[string]error{},
		roleDocs: map[string]string{},
	}
}

func (f *fakeIdentity) record(op string) error {
	f.calls = append(f.calls, op)
	return f.failures[op]
}

func (f *fakeIdentity) CreateUserPool(ctx context.Context, tenantID string) (identity.UserPool, error) {
	if err := f.record("CreateUserPool"); err != nil {
		return identity.UserPool{}, err
	}
	return identity.UserPool{ID: "pool-" + tenantID, Name: tenantID}, nil
}

func (f *fakeIdentity) CreateUserPoolClient(ctx context.Context, userPoolID, name string) (identity.PoolClient, error) {
	if err := f.record("CreateUserPoolClient"); err != nil {
		return identity.PoolClient{}, err
	}
	return identity.PoolClient{ClientID: "client-1", UserPoolID: userPoolID, Name: name}, nil
}

func (f *fakeIdentity) CreateIdentityPool(ctx context.Context, userPoolID, clientID, name string) (identity.IdentityPool, error) {
	if err := f.record("CreateIdentityPool"); err != nil {
		return identity.IdentityPool{}, err
	}
	return identity.IdentityPool{ID: "idpool-1", Name: name}, nil
}

func (f *fakeIdentity) CreatePolicy(ctx context.Context, name, document string) (identity.Policy, error) {
	if err := f.record("CreatePolicy:" + name); err != nil {
		return identity.Policy{}, err
	}
	return identity.Policy{ARN: "arn:policy/" + name, Name: name}, nil
}

func (f *fakeIdentity) CreateRole(ctx context.Context, name, trustDocument string) (identity.Role, error) {
	if err := f.record("CreateRole:" + name); err != nil {
		return identity.Role{}, err
	}
	f.roleDocs[name] = trustDocument
	return identity.Role{ARN: "arn:role/" + name, Name: name}, nil
}

func (f *fakeIdentity) AttachRolePolicy(ctx context.Context, policyARN, roleName string) error {
	return f.record("AttachRolePolicy:" + roleName)
}

func (f *fakeIdentity) SetIdentityPoolRoles(ctx context.Context, binding identity.RoleBinding) error {
	f.binding = binding
	return f.record("SetIdentityPoolRoles")
}

func (f *fakeIdentity) CreateUser(ctx context.Context, creds auth.Credentials, user identity.NewUser) (identity.User, error) {
	if err := f.record("CreateUser:" + user.UserName); err != nil {
		return identity.User{}, err
	}
	return identity.User{UserName: user.UserName, Sub: "sub-" + user.UserName, Enabled: true}, nil
}

func (f *fakeIdentity) GetUser(ctx context.Context, creds auth.Credentials, userPoolID, userName string) (identity.User, error) {
	if err := f.record("GetUser:" + userName); err != nil {
		return identity.User{}, err
	}
	return identity.User{UserName: userName, Enabled: true}, nil
}

func (f *fakeIdentity) ListUsers(ctx context.Context, creds auth.Credentials, userPoolID string) ([]identity.User, error) {
	if err := f.record("ListUsers"); err != nil {
		return nil, err
	}
	return nil, nil
}

func (f *fakeIdentity) UpdateUser(ctx context.Context, creds auth.Credentials, userPoolID string, update identity.UserUpdate) error {
	return f.record("UpdateUser:" + update.UserName)
}

func (f *fakeIdentity) SetUserEnabled(ctx context.Context, creds auth.Credentials, userPoolID, userName string, enabled bool) error {
	return f.record(fmt.Sprintf("SetUserEnabled:%s:%t", userName, enabled))
}

func (f *fakeIdentity) DeleteUser(ctx context.Context, creds auth.Credentials, userPoolID, userName string) error {
	return f.record("DeleteUser:" + userName)
}

func (f *fakeIdentity) DeleteUserPool(ctx context.Context, userPoolID string) error {
	return f.record("DeleteUserPool:" + userPoolID)
}

func (f *fakeIdentity) DeleteIdentityPool(ctx context.Context, identityPoolID string) error {
	return f.record("DeleteIdentityPool:" + identityPoolID)
}

func (f *fakeIdentity) DetachRolePolicy(ctx context.Context, policyARN, roleName string) error {
	return f.record("DetachRolePolicy:" + roleName)
}

func (f *fakeIdentity) DeletePolicy(ctx context.Context, policyARN string) error {
	return f.record("DeletePolicy:" + policyARN)
}

func (f *fakeIdentity) DeleteRole(ctx context.Context, roleName string) error {
	return f.record("DeleteRole:" + roleName)
}

var _ identity.Client = (*fakeIdentity)(nil)

func newTestWorkflow(t *testing.T, client identity.Client, users records.UserStore, tenants records.TenantStore) *Workflow {
	t.Helper()
	cfg := Config{
		AccountID:    "123456789012",
		Region:       "us-east-1",
		TenantTable:  "Tenants",
		UserTable:    "Users",
		ProductTable: "Products",
		OrderTable:   "Orders",
	}
	return NewWorkflow(client, users, tenants, cfg, zaptest.NewLogger(t))
}

func adminUser(tenantID string) User {
	return User{
		TenantID:  tenantID,
		UserName:  "alice@acme.com",
		FirstName: "Alice",
		LastName:  "Arnold",
		Tier:      "gold",
	}
}

func TestProvisionAdminUserSuccess(t *testing.T) {
	t.Parallel()

	fake := newFakeIdentity()
	users := records.NewMemoryUserStore()
	wf := newTestWorkflow(t, fake, users, records.NewMemoryTenantStore())

	result, err := wf.ProvisionAdminUser(context.Background(), auth.Credentials{}, adminUser("TENANT1"), RoleTenantAdmin, RoleTenantUser)
	require.NoError(t, err)

	require.Equal(t, "pool-TENANT1", result.UserPoolID)
	require.Equal(t, "TENANT1", result.UserPoolName)
	require.Equal(t, "client-1", result.ClientID)
	require.Equal(t, "idpool-1", result.IdentityPoolID)
	require.Equal(t, "TENANT1-TenantAdmin", result.AdminRoleName)
	require.Equal(t, "arn:role/TENANT1-TenantAdmin", result.AdminRoleARN)
	require.Equal(t, "TENANT1-TenantUser", result.MemberRoleName)
	require.Equal(t, "TENANT1-Trust", result.TrustRoleName)
	require.Equal(t, "arn:policy/TENANT1-TenantAdminPolicy", result.AdminPolicyARN)
	require.Equal(t, "arn:policy/TENANT1-TenantUserPolicy", result.MemberPolicyARN)

	// The user record was persisted with identifiers from the run.
	record, err := users.Get(context.Background(), "TENANT1", "alice@acme.com")
	require.NoError(t, err)
	require.Equal(t, "pool-TENANT1", record.UserPoolID)
	require.Equal(t, "idpool-1", record.IdentityPoolID)
	require.Equal(t, "client-1", record.ClientID)
	require.Equal(t, "sub-alice@acme.com", record.Sub)
	require.Equal(t, RoleTenantAdmin, record.Role)

	require.Equal(t, []string{
		"CreateUserPool",
		"CreateUserPoolClient",
		"CreateIdentityPool",
		"CreatePolicy:TENANT1-TenantAdminPolicy",
		"CreateUser:alice@acme.com",
		"CreatePolicy:TENANT1-TenantUserPolicy",
		"CreateRole:TENANT1-TenantAdmin",
		"CreateRole:TENANT1-TenantUser",
		"CreateRole:TENANT1-Trust",
		"AttachRolePolicy:TENANT1-TenantAdmin",
		"AttachRolePolicy:TENANT1-TenantUser",
		"SetIdentityPoolRoles",
	}, fake.calls)

	// Role binding carries all three roles keyed by provider and client.
	require.Equal(t, "arn:role/TENANT1-Trust", fake.binding.TrustRoleARN)
	require.Equal(t, "arn:role/TENANT1-TenantAdmin", fake.binding.AdminRoleARN)
	require.Equal(t, "arn:role/TENANT1-TenantUser", fake.binding.MemberRoleARN)
	require.Equal(t, "client-1", fake.binding.ClientID)
}

func TestProvisionAdminUserTrustPolicyEmbedsIdentityPool(t *testing.T) {
	t.Parallel()

	fake := newFakeIdentity()
	wf := newTestWorkflow(t, fake, records.NewMemoryUserStore(), records.NewMemoryTenantStore())

	_, err := wf.ProvisionAdminUser(context.Background(), auth.Credentials{}, adminUser("TENANT2"), RoleTenantAdmin, RoleTenantUser)
	require.NoError(t, err)

	for _, role := range []string{"TENANT2-TenantAdmin", "TENANT2-TenantUser", "TENANT2-Trust"} {
		doc, ok := fake.roleDocs[role]
		require.True(t, ok, "trust document missing for %s", role)
		require.Contains(t, doc, "idpool-1")
	}
}

func TestProvisionAdminUserAlreadyExists(t *testing.T) {
	t.Parallel()

	fake := newFakeIdentity()
	users := records.NewMemoryUserStore()
	wf := newTestWorkflow(t, fake, users, records.NewMemoryTenantStore())

	_, err := wf.ProvisionAdminUser(context.Background(), auth.Credentials{}, adminUser("TENANT3"), RoleTenantAdmin, RoleTenantUser)
	require.NoError(t, err)

	callsAfterFirst := len(fake.calls)

	_, err = wf.ProvisionAdminUser(context.Background(), auth.Credentials{}, adminUser("TENANT3"), RoleTenantAdmin, RoleTenantUser)
	require.ErrorIs(t, err, ErrAlreadyExists)
	require.Len(t, fake.calls, callsAfterFirst, "second invocation must issue zero identity calls")
}

func TestProvisionAdminUserUpstreamFailureAborts(t *testing.T) {
	t.Parallel()

	fake := newFakeIdentity()
	boom := errors.New("throttled")
	fake.failures["CreateIdentityPool"] = boom

	users := records.NewMemoryUserStore()
	wf := newTestWorkflow(t, fake, users, records.NewMemoryTenantStore())

	_, err := wf.ProvisionAdminUser(context.Background(), auth.Credentials{}, adminUser("TENANT4"), RoleTenantAdmin, RoleTenantUser)

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	require.Equal(t, "create identity pool", upstream.Step)
	require.ErrorIs(t, err, boom)

	// Nothing past the failed step ran, and no record was written.
	require.Equal(t, []string{"CreateUserPool", "CreateUserPoolClient", "CreateIdentityPool"}, fake.calls)
	_, err = users.Get(context.Background(), "TENANT4", "alice@acme.com")
	require.ErrorIs(t, err, records.ErrNotFound)
}

type failingUserStore struct {
	*records.MemoryUserStore
	putErr error
}

func (s *failingUserStore) Put(ctx context.Context, record records.UserRecord) (records.UserRecord, error) {
	if s.putErr != nil {
		return records.UserRecord{}, s.putErr
	}
	return s.MemoryUserStore.Put(ctx, record)
}

func TestCreateUserProviderFailureSkipsStore(t *testing.T) {
	t.Parallel()

	fake := newFakeIdentity()
	fake.failures["CreateUser:bob@acme.com"] = errors.New("quota")

	users := records.NewMemoryUserStore()
	wf := newTestWorkflow(t, fake, users, records.NewMemoryTenantStore())

	_, err := wf.CreateUser(context.Background(), auth.Credentials{}, "pool-1", "idpool-1", "client-1", "TENANT5",
		User{TenantID: "TENANT5", UserName: "bob@acme.com", Tier: "basic", Role: RoleTenantUser})

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)

	all, qErr := users.QueryByID(context.Background(), "bob@acme.com")
	require.NoError(t, qErr)
	require.Empty(t, all, "no record-store write may happen after a provider failure")
}

func TestCreateUserStoreFailureIsPersistenceError(t *testing.T) {
	t.Parallel()

	fake := newFakeIdentity()
	users := &failingUserStore{MemoryUserStore: records.NewMemoryUserStore(), putErr: errors.New("capacity")}
	wf := newTestWorkflow(t, fake, users, records.NewMemoryTenantStore())

	_, err := wf.CreateUser(context.Background(), auth.Credentials{}, "pool-1", "idpool-1", "client-1", "TENANT6",
		User{TenantID: "TENANT6", UserName: "carol@acme.com", Role: RoleTenantUser})

	var persistence *PersistenceError
	require.ErrorAs(t, err, &persistence)

	// The provider-side create did run; the orphan is the documented gap.
	require.Contains(t, fake.calls, "CreateUser:carol@acme.com")
}

func TestLookupUserSystemContext(t *testing.T) {
	t.Parallel()

	users := records.NewMemoryUserStore()
	wf := newTestWorkflow(t, newFakeIdentity(), users, records.NewMemoryTenantStore())
	ctx := context.Background()

	_, err := wf.LookupUser(ctx, auth.Credentials{}, "dan@acme.com", "", true)
	require.ErrorIs(t, err, records.ErrNotFound)

	_, err = users.Put(ctx, records.UserRecord{ID: "dan@acme.com", TenantID: "TENANT7", UserPoolID: "pool-7"})
	require.NoError(t, err)

	record, err := wf.LookupUser(ctx, auth.Credentials{}, "dan@acme.com", "", true)
	require.NoError(t, err)
	require.Equal(t, "TENANT7", record.TenantID)

	// Tenant context requires the direct key.
	_, err = wf.LookupUser(ctx, auth.Credentials{}, "dan@acme.com", "TENANT8", false)
	require.ErrorIs(t, err, records.ErrNotFound)

	record, err = wf.LookupUser(ctx, auth.Credentials{}, "dan@acme.com", "TENANT7", false)
	require.NoError(t, err)
	require.Equal(t, "pool-7", record.UserPoolID)
}

func infraTenant(id string) records.TenantRecord {
	return records.TenantRecord{
		ID:                  id,
		UserPoolID:          "pool-" + id,
		IdentityPoolID:      "idpool-" + id,
		SystemAdminRole:     id + "-TenantAdmin",
		SystemSupportRole:   id + "-TenantUser",
		TrustRole:           id + "-Trust",
		SystemAdminPolicy:   "arn:policy/" + id + "-TenantAdminPolicy",
		SystemSupportPolicy: "arn:policy/" + id + "-TenantUserPolicy",
	}
}

func tenantChainCalls(id string) []string {
	return []string{
		"DeleteUserPool:pool-" + id,
		"DeleteIdentityPool:idpool-" + id,
		"DetachRolePolicy:" + id + "-TenantAdmin",
		"DetachRolePolicy:" + id + "-TenantUser",
		"DeletePolicy:arn:policy/" + id + "-TenantAdminPolicy",
		"DeletePolicy:arn:policy/" + id + "-TenantUserPolicy",
		"DeleteRole:" + id + "-TenantAdmin",
		"DeleteRole:" + id + "-TenantUser",
		"DeleteRole:" + id + "-Trust",
	}
}

func TestDeleteTenantInfrastructureOrder(t *testing.T) {
	t.Parallel()

	fake := newFakeIdentity()
	tenants := records.NewMemoryTenantStore()
	ctx := context.Background()

	_, err := tenants.Put(ctx, infraTenant("T1"))
	require.NoError(t, err)
	_, err = tenants.Put(ctx, infraTenant("T2"))
	require.NoError(t, err)

	wf := newTestWorkflow(t, fake, records.NewMemoryUserStore(), tenants)
	require.NoError(t, wf.DeleteTenantInfrastructure(ctx))

	expected := append(tenantChainCalls("T1"), tenantChainCalls("T2")...)
	require.Equal(t, expected, fake.calls)
}

func TestDeleteTenantInfrastructureAbortsOnFailure(t *testing.T) {
	t.Parallel()

	fake := newFakeIdentity()
	fake.failures["DeletePolicy:arn:policy/T1-TenantAdminPolicy"] = errors.New("denied")

	tenants := records.NewMemoryTenantStore()
	ctx := context.Background()
	_, err := tenants.Put(ctx, infraTenant("T1"))
	require.NoError(t, err)
	_, err = tenants.Put(ctx, infraTenant("T2"))
	require.NoError(t, err)

	wf := newTestWorkflow(t, fake, records.NewMemoryUserStore(), tenants)
	err = wf.DeleteTenantInfrastructure(ctx)

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	require.Contains(t, upstream.Step, "T1")

	// T1's chain stopped at the failing call; T2 was never touched.
	require.Equal(t, tenantChainCalls("T1")[:5], fake.calls)
}

func TestDeleteTenantInfrastructureNoTenants(t *testing.T) {
	t.Parallel()

	fake := newFakeIdentity()
	wf := newTestWorkflow(t, fake, records.NewMemoryUserStore(), records.NewMemoryTenantStore())

	require.NoError(t, wf.DeleteTenantInfrastructure(context.Background()))
	require.Empty(t, fake.calls)
}
