package identity

import (
	"encoding/json"
	"fmt"
)

// PolicyParams carries the substitutions for tenant-scoped policy documents.
type PolicyParams struct {
	TenantID   string
	AccountID  string
	Region     string
	UserPoolID string

	TenantTable  string
	UserTable    string
	ProductTable string
	OrderTable   string
}

type policyDocument struct {
	Version   string            `json:"Version"`
	Statement []policyStatement `json:"Statement"`
}

type policyStatement struct {
	Sid       string         `json:"Sid,omitempty"`
	Effect    string         `json:"Effect"`
	Action    []string       `json:"Action"`
	Resource  []string       `json:"Resource,omitempty"`
	Principal map[string]any `json:"Principal,omitempty"`
	Condition map[string]any `json:"Condition,omitempty"`
}

// TrustPolicyDocument renders the role trust policy allowing authenticated
// identities from the given federated identity pool to assume the role.
func TrustPolicyDocument(identityPoolID string) (string, error) {
	doc := policyDocument{
		Version: "2012-10-17",
		Statement: []policyStatement{
			{
				Effect:    "Allow",
				Principal: map[string]any{"Federated": "cognito-identity.amazonaws.com"},
				Action:    []string{"sts:AssumeRoleWithWebIdentity"},
				Condition: map[string]any{
					"StringEquals": map[string]any{
						"cognito-identity.amazonaws.com:aud": identityPoolID,
					},
					"ForAnyValue:StringLike": map[string]any{
						"cognito-identity.amazonaws.com:amr": "authenticated",
					},
				},
			},
		},
	}

	return marshalDocument(doc)
}

// AdminPolicyDocument renders the elevated per-tenant policy: full access to
// the tenant's rows in the managed tables plus user administration on the
// tenant's pool.
func AdminPolicyDocument(p PolicyParams) (string, error) {
	doc := policyDocument{
		Version: "2012-10-17",
		Statement: []policyStatement{
			tenantTableStatement("TenantAdminTableAccess", p,
				[]string{
					"dynamodb:GetItem",
					"dynamodb:BatchGetItem",
					"dynamodb:Query",
					"dynamodb:PutItem",
					"dynamodb:UpdateItem",
					"dynamodb:DeleteItem",
					"dynamodb:BatchWriteItem",
				}),
			{
				Sid:    "TenantAdminPoolAccess",
				Effect: "Allow",
				Action: []string{
					"cognito-idp:AdminCreateUser",
					"cognito-idp:AdminDeleteUser",
					"cognito-idp:AdminDisableUser",
					"cognito-idp:AdminEnableUser",
					"cognito-idp:AdminGetUser",
					"cognito-idp:AdminUpdateUserAttributes",
					"cognito-idp:ListUsers",
				},
				Resource: []string{userPoolARN(p)},
			},
		},
	}

	return marshalDocument(doc)
}

// MemberPolicyDocument renders the standard per-tenant policy: read-only
// access to the tenant's rows and user listing on the tenant's pool.
func MemberPolicyDocument(p PolicyParams) (string, error) {
	doc := policyDocument{
		Version: "2012-10-17",
		Statement: []policyStatement{
			tenantTableStatement("TenantMemberTableAccess", p,
				[]string{
					"dynamodb:GetItem",
					"dynamodb:BatchGetItem",
					"dynamodb:Query",
				}),
			{
				Sid:      "TenantMemberPoolAccess",
				Effect:   "Allow",
				Action:   []string{"cognito-idp:AdminGetUser", "cognito-idp:ListUsers"},
				Resource: []string{userPoolARN(p)},
			},
		},
	}

	return marshalDocument(doc)
}

func tenantTableStatement(sid string, p PolicyParams, actions []string) policyStatement {
	return policyStatement{
		Sid:    sid,
		Effect: "Allow",
		Action: actions,
		Resource: []string{
			tableARN(p, p.TenantTable),
			tableARN(p, p.UserTable),
			tableARN(p, p.ProductTable),
			tableARN(p, p.OrderTable),
		},
		Condition: map[string]any{
			"ForAllValues:StringEquals": map[string]any{
				"dynamodb:LeadingKeys": []string{p.TenantID},
			},
		},
	}
}

func tableARN(p PolicyParams, table string) string {
	return fmt.Sprintf("arn:aws:dynamodb:%s:%s:table/%s", p.Region, p.AccountID, table)
}

func userPoolARN(p PolicyParams) string {
	return fmt.Sprintf("arn:aws:cognito-idp:%s:%s:userpool/%s", p.Region, p.AccountID, p.UserPoolID)
}

func marshalDocument(doc policyDocument) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal policy document: %w", err)
	}
	return string(data), nil
}
