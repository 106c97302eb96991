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
	lookupPoolFn    func(ctx context.Context, userName string) (records.UserRecord, error)
	provisionFn     func(ctx context.Context, req usermanager.AdminRequest) (provisioning.Result, error)
	deleteTenantsFn func(ctx context.Context) error
}

func (f *fnUserManager) LookupPool(ctx context.Context, userName string) (records.UserRecord, error) {
	return f.lookupPoolFn(ctx, userName)
}

func (f *fnUserManager) ProvisionSystemAdmin(ctx context.Context, req usermanager.AdminRequest) (provisioning.Result, error) {
	return f.provisionFn(ctx, req)
}

func (f *fnUserManager) DeleteTenants(ctx context.Context) error {
	return f.deleteTenantsFn(ctx)
}

var sysadminIDPattern = regexp.MustCompile(`^SYSADMIN[0-9a-f]{32}$`)

func TestRegisterAdmin(t *testing.T) {
	t.Parallel()

	var provisioned usermanager.AdminRequest
	users := &fnUserManager{
		lookupPoolFn: func(ctx context.Context, userName string) (records.UserRecord, error) {
			return records.UserRecord{}, usermanager.ErrUserNotFound
		},
		provisionFn: func(ctx context.Context, req usermanager.AdminRequest) (provisioning.Result, error) {
			provisioned = req
			return provisioning.Result{
				UserPoolID:     "pool-1",
				IdentityPoolID: "idpool-1",
				AdminRoleName:  req.TenantID + "-SystemAdmin",
				MemberRoleName: req.TenantID + "-SystemUser",
				TrustRoleName:  req.TenantID + "-Trust",
			}, nil
		},
	}
	tenants := records.NewMemoryTenantStore()
	svc := New(users, tenants, zaptest.NewLogger(t))

	tenantID, err := svc.RegisterAdmin(context.Background(), Registration{
		UserName: "root@saas.com",
		Email:    "root@saas.com",
	})
	require.NoError(t, err)
	require.Regexp(t, sysadminIDPattern, tenantID)
	require.Equal(t, tenantID, provisioned.TenantID)

	stored, err := tenants.ListWithInfrastructure(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, provisioning.TierSystem, stored[0].Tier)
	require.Equal(t, records.StatusActive, stored[0].Status)
	require.Equal(t, tenantID+"-SystemAdmin", stored[0].SystemAdminRole)
}

func TestRegisterAdminExistingUser(t *testing.T) {
	t.Parallel()

	users := &fnUserManager{
		lookupPoolFn: func(ctx context.Context, userName string) (records.UserRecord, error) {
			return records.UserRecord{ID: userName, UserName: userName}, nil
		},
		provisionFn: func(ctx context.Context, req usermanager.AdminRequest) (provisioning.Result, error) {
			t.Fatal("provisioning must not run for an existing user")
			return provisioning.Result{}, nil
		},
	}
	svc := New(users, records.NewMemoryTenantStore(), zaptest.NewLogger(t))

	_, err := svc.RegisterAdmin(context.Background(), Registration{UserName: "root@saas.com"})
	require.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestTeardown(t *testing.T) {
	t.Parallel()

	boom := errors.New("teardown failed")
	users := &fnUserManager{deleteTenantsFn: func(ctx context.Context) error { return boom }}
	svc := New(users, records.NewMemoryTenantStore(), zaptest.NewLogger(t))

	require.ErrorIs(t, svc.Teardown(context.Background()), boom)

	users.deleteTenantsFn = func(ctx context.Context) error { return nil }
	require.NoError(t, svc.Teardown(context.Background()))
}
