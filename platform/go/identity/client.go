// Package identity defines the capability interface over the external
// identity provider (user pools, federated identity pools, policies, roles)
// and its AWS Cognito/IAM implementation.
package identity

import (
	"context"

	"github.com/cloudward/saas-identity/platform/go/auth"
)

// UserPool identifies a created user pool.
type UserPool struct {
	ID   string
	Name string
}

// PoolClient identifies an app client bound to a user pool.
type PoolClient struct {
	ClientID   string
	UserPoolID string
	Name       string
}

// IdentityPool identifies a federated identity pool.
type IdentityPool struct {
	ID   string
	Name string
}

// Policy identifies a managed policy.
type Policy struct {
	ARN  string
	Name string
}

// Role identifies an IAM-style role.
type Role struct {
	ARN  string
	Name string
}

// NewUser carries the attributes for a provider-side user creation.
type NewUser struct {
	UserPoolID string
	UserName   string
	Email      string
	FirstName  string
	LastName   string
	Role       string
	Tier       string
	TenantID   string
}

// User is the provider-side view of a user.
type User struct {
	UserName  string
	Sub       string
	Email     string
	FirstName string
	LastName  string
	Role      string
	Tier      string
	Enabled   bool
	Status    string
}

// UserUpdate carries the mutable provider-side attributes of a user.
type UserUpdate struct {
	UserName  string
	FirstName string
	LastName  string
	Role      string
}

// RoleBinding maps the three provisioned roles onto a federated identity
// pool, keyed by the user pool provider and app client.
type RoleBinding struct {
	IdentityPoolID string
	UserPoolID     string
	ClientID       string
	TrustRoleARN   string
	AdminRoleARN   string
	MemberRoleARN  string
	AdminRoleKind  string
	MemberRoleKind string
}

// Client is the capability surface the provisioning workflow drives. Every
// method is a single outbound call; no method retries or compensates.
type Client interface {
	CreateUserPool(ctx context.Context, tenantID string) (UserPool, error)
	CreateUserPoolClient(ctx context.Context, userPoolID, name string) (PoolClient, error)
	CreateIdentityPool(ctx context.Context, userPoolID, clientID, name string) (IdentityPool, error)
	CreatePolicy(ctx context.Context, name, document string) (Policy, error)
	CreateRole(ctx context.Context, name, trustDocument string) (Role, error)
	AttachRolePolicy(ctx context.Context, policyARN, roleName string) error
	SetIdentityPoolRoles(ctx context.Context, binding RoleBinding) error

	CreateUser(ctx context.Context, creds auth.Credentials, user NewUser) (User, error)
	GetUser(ctx context.Context, creds auth.Credentials, userPoolID, userName string) (User, error)
	ListUsers(ctx context.Context, creds auth.Credentials, userPoolID string) ([]User, error)
	UpdateUser(ctx context.Context, creds auth.Credentials, userPoolID string, update UserUpdate) error
	SetUserEnabled(ctx context.Context, creds auth.Credentials, userPoolID, userName string, enabled bool) error
	DeleteUser(ctx context.Context, creds auth.Credentials, userPoolID, userName string) error

	DeleteUserPool(ctx context.Context, userPoolID string) error
	DeleteIdentityPool(ctx context.Context, identityPoolID string) error
	DetachRolePolicy(ctx context.Context, policyARN, roleName string) error
	DeletePolicy(ctx context.Context, policyARN string) error
	DeleteRole(ctx context.Context, roleName string) error
}
