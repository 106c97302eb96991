// Package records provides the key-value table abstraction persisting tenant
// and user metadata. Stores are keyed by (tenant, id) with a secondary lookup
// by bare id for system-context queries.
package records

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no record matches the requested key.
var ErrNotFound = errors.New("record not found")

// StatusActive is the status stamped on tenant records at registration.
const StatusActive = "Active"

// UserRecord is the stored metadata for a provisioned user. The record id is
// the user name; tenant_id scopes the record to its tenant.
type UserRecord struct {
	ID             string `json:"id" dynamodbav:"id"`
	TenantID       string `json:"tenant_id" dynamodbav:"tenant_id"`
	UserName       string `json:"userName" dynamodbav:"userName"`
	Tier           string `json:"tier" dynamodbav:"tier"`
	Role           string `json:"role" dynamodbav:"role"`
	UserPoolID     string `json:"UserPoolId" dynamodbav:"UserPoolId"`
	IdentityPoolID string `json:"IdentityPoolId" dynamodbav:"IdentityPoolId"`
	ClientID       string `json:"client_id" dynamodbav:"client_id"`
	Sub            string `json:"sub" dynamodbav:"sub"`
	FirstName      string `json:"firstName" dynamodbav:"firstName"`
	LastName       string `json:"lastName" dynamodbav:"lastName"`
	Email          string `json:"email" dynamodbav:"email"`
}

// TenantRecord is the stored configuration of a registered tenant, including
// every identity-resource identifier teardown needs later.
type TenantRecord struct {
	ID                  string `json:"id" dynamodbav:"id"`
	CompanyName         string `json:"companyName" dynamodbav:"companyName"`
	AccountName         string `json:"accountName" dynamodbav:"accountName"`
	OwnerName           string `json:"ownerName" dynamodbav:"ownerName"`
	Tier                string `json:"tier" dynamodbav:"tier"`
	Email               string `json:"email" dynamodbav:"email"`
	Status              string `json:"status" dynamodbav:"status"`
	UserPoolID          string `json:"UserPoolId" dynamodbav:"UserPoolId"`
	IdentityPoolID      string `json:"IdentityPoolId" dynamodbav:"IdentityPoolId"`
	SystemAdminRole     string `json:"systemAdminRole" dynamodbav:"systemAdminRole"`
	SystemSupportRole   string `json:"systemSupportRole" dynamodbav:"systemSupportRole"`
	TrustRole           string `json:"trustRole" dynamodbav:"trustRole"`
	SystemAdminPolicy   string `json:"systemAdminPolicy" dynamodbav:"systemAdminPolicy"`
	SystemSupportPolicy string `json:"systemSupportPolicy" dynamodbav:"systemSupportPolicy"`
	UserName            string `json:"userName" dynamodbav:"userName"`
}

// HasInfrastructure reports whether the record carries provisioned identity
// resources that teardown must remove.
func (t TenantRecord) HasInfrastructure() bool {
	return t.UserPoolID != ""
}

// UserStore persists user records keyed by (tenant, id) with a secondary
// index on the bare id.
type UserStore interface {
	// Get fetches a user by direct (tenant, id) key.
	Get(ctx context.Context, tenantID, id string) (UserRecord, error)
	// QueryByID looks up users by bare id across all tenants via the
	// secondary index. Order is whatever the index yields first.
	QueryByID(ctx context.Context, id string) ([]UserRecord, error)
	// Put writes a user record, replacing any existing record with the same key.
	Put(ctx context.Context, record UserRecord) (UserRecord, error)
	// Delete removes a user record by direct key.
	Delete(ctx context.Context, tenantID, id string) error
}

// TenantStore persists tenant records keyed by id.
type TenantStore interface {
	// Put writes a tenant record.
	Put(ctx context.Context, record TenantRecord) (TenantRecord, error)
	// ListWithInfrastructure returns every tenant record carrying
	// provisioned identity resources.
	ListWithInfrastructure(ctx context.Context) ([]TenantRecord, error)
	// Delete removes a tenant record by id.
	Delete(ctx context.Context, id string) error
}

// TableAdmin exposes the destructive table-level operations used by the
// infrastructure teardown endpoints.
type TableAdmin interface {
	DeleteTable(ctx context.Context, name string) error
}
