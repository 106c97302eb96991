package service

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cloudward/saas-identity/domains/users/be/provisioning"
	"github.com/cloudward/saas-identity/platform/go/records"
	"github.com/cloudward/saas-identity/platform/go/usermanager"
)

type fnUserManager struct {
	lookupPoolFn func(ctx context.Context, userName string) (records.UserRecord, error)
	provisionFn  func(ctx context.Context, req usermanager.AdminRequest) (provisioning.Result, error)
}

func (f *fnUserManager) LookupPool(ctx context.Context, userName string) (records.UserRecord, error) {
	return f.lookupPoolFn(ctx, userName)
}

func (f *fnUserManager) ProvisionTenantAdmin(ctx context.Context, req usermanager.AdminRequest) (provisioning.Result, error) {
	return f.provisionFn(ctx, req)
}

var tenantIDPattern = regexp.MustCompile(`^TENANT[0-9a-f]{32}$`)

func TestRegisterNewTenant(t *testing.T) {
	t.Parallel()

	var provisioned usermanager.AdminRequest
	users := &fnUserManager{
		lookupPoolFn: func(ctx context.Context, userName string) (records.UserRecord, error) {
			return records.UserRecord{}, usermanager.ErrUserNotFound
		},
		provisionFn: func(ctx context.Context, req usermanager.AdminRequest) (provisioning.Result, error) {
			provisioned = req
			return provisioning.Result{
				UserPoolID:      "pool-1",
				IdentityPoolID:  "idpool-1",
				AdminRoleName:   req.TenantID + "-TenantAdmin",
				MemberRoleName:  req.TenantID + "-TenantUser",
				TrustRoleName:   req.TenantID + "-Trust",
				AdminPolicyARN:  "arn:policy/" + req.TenantID + "-TenantAdminPolicy",
				MemberPolicyARN: "arn:policy/" + req.TenantID + "-TenantUserPolicy",
			}, nil
		},
	}
	tenants := records.NewMemoryTenantStore()
	svc := New(users, tenants, zaptest.NewLogger(t))

	tenantID, err := svc.Register(context.Background(), Registration{
		CompanyName: "Acme",
		AccountName: "acme1",
		OwnerName:   "Alice A",
		Tier:        "gold",
		Email:       "a@acme.com",
		UserName:    "alice",
	})
	require.NoError(t, err)
	require.Regexp(t, tenantIDPattern, tenantID)
	require.Equal(t, tenantID, provisioned.TenantID)
	require.Equal(t, "alice", provisioned.UserName)

	stored, err := tenants.ListWithInfrastructure(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, tenantID, stored[0].ID)
	require.Equal(t, records.StatusActive, stored[0].Status)
	require.Equal(t, "pool-1", stored[0].UserPoolID)
	require.Equal(t, tenantID+"-Trust", stored[0].TrustRole)
	require.Equal(t, "arn:policy/"+tenantID+"-TenantUserPolicy", stored[0].SystemSupportPolicy)
}

func TestRegisterExistingUser(t *testing.T) {
	t.Parallel()

	users := &fnUserManager{
		lookupPoolFn: func(ctx context.Context, userName string) (records.UserRecord, error) {
			return records.UserRecord{ID: userName, UserName: userName, TenantID: "TENANT1"}, nil
		},
		provisionFn: func(ctx context.Context, req usermanager.AdminRequest) (provisioning.Result, error) {
			t.Fatal("provisioning must not run for an existing user")
			return provisioning.Result{}, nil
		},
	}
	svc := New(users, records.NewMemoryTenantStore(), zaptest.NewLogger(t))

	_, err := svc.Register(context.Background(), Registration{UserName: "alice"})
	require.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestRegisterProvisioningFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("provisioning failed")
	users := &fnUserManager{
		lookupPoolFn: func(ctx context.Context, userName string) (records.UserRecord, error) {
			return records.UserRecord{}, usermanager.ErrUserNotFound
		},
		provisionFn: func(ctx context.Context, req usermanager.AdminRequest) (provisioning.Result, error) {
			return provisioning.Result{}, boom
		},
	}
	tenants := records.NewMemoryTenantStore()
	svc := New(users, tenants, zaptest.NewLogger(t))

	_, err := svc.Register(context.Background(), Registration{UserName: "alice"})
	require.ErrorIs(t, err, boom)

	stored, err := tenants.ListWithInfrastructure(context.Background())
	require.NoError(t, err)
	require.Empty(t, stored)
}

func TestLookupFailureDoesNotBlockRegistration(t *testing.T) {
	t.Parallel()

	users := &fnUserManager{
		lookupPoolFn: func(ctx context.Context, userName string) (records.UserRecord, error) {
			return records.UserRecord{}, errors.New("user manager unreachable")
		},
		provisionFn: func(ctx context.Context, req usermanager.AdminRequest) (provisioning.Result, error) {
			return provisioning.Result{UserPoolID: "pool-1"}, nil
		},
	}
	svc := New(users, records.NewMemoryTenantStore(), zaptest.NewLogger(t))

	tenantID, err := svc.Register(context.Background(), Registration{UserName: "alice"})
	require.NoError(t, err)
	require.Regexp(t, tenantIDPattern, tenantID)
}

func TestNewTenantIDFormat(t *testing.T) {
	t.Parallel()

	seen := map[string]struct{}{}
	for i := 0; i < 100; i++ {
		id := NewTenantID()
		require.Regexp(t, tenantIDPattern, id)
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
	}
}
