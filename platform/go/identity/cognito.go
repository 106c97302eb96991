package identity

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentity"
	citypes "github.com/aws/aws-sdk-go-v2/service/cognitoidentity/types"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	ciptypes "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/aws/aws-sdk-go-v2/service/iam"

	"github.com/cloudward/saas-identity/platform/go/auth"
)

// AWSClient implements Client against Cognito user pools, Cognito identity
// pools, and IAM.
type AWSClient struct {
	idp      *cognitoidentityprovider.Client
	identity *cognitoidentity.Client
	iam      *iam.Client
	region   string
}

// NewAWSClient builds the AWS-backed identity client from a shared config.
func NewAWSClient(cfg aws.Config) *AWSClient {
	return &AWSClient{
		idp:      cognitoidentityprovider.NewFromConfig(cfg),
		identity: cognitoidentity.NewFromConfig(cfg),
		iam:      iam.NewFromConfig(cfg),
		region:   cfg.Region,
	}
}

var _ Client = (*AWSClient)(nil)

func (c *AWSClient) CreateUserPool(ctx context.Context, tenantID string) (UserPool, error) {
	customAttrs := []string{"tenant_id", "tier", "role", "company_name", "account_name"}
	schema := make([]ciptypes.SchemaAttributeType, 0, len(customAttrs))
	for _, name := range customAttrs {
		schema = append(schema, ciptypes.SchemaAttributeType{
			Name:              aws.String(name),
			AttributeDataType: ciptypes.AttributeDataTypeString,
			Mutable:           aws.Bool(true),
		})
	}

	out, err := c.idp.CreateUserPool(ctx, &cognitoidentityprovider.CreateUserPoolInput{
		PoolName: aws.String(tenantID),
		AdminCreateUserConfig: &ciptypes.AdminCreateUserConfigType{
			AllowAdminCreateUserOnly: true,
		},
		Schema:                 schema,
		AutoVerifiedAttributes: []ciptypes.VerifiedAttributeType{ciptypes.VerifiedAttributeTypeEmail},
	})
	if err != nil {
		return UserPool{}, fmt.Errorf("create user pool: %w", err)
	}

	return UserPool{
		ID:   aws.ToString(out.UserPool.Id),
		Name: aws.ToString(out.UserPool.Name),
	}, nil
}

func (c *AWSClient) CreateUserPoolClient(ctx context.Context, userPoolID, name string) (PoolClient, error) {
	out, err := c.idp.CreateUserPoolClient(ctx, &cognitoidentityprovider.CreateUserPoolClientInput{
		ClientName:     aws.String(name),
		UserPoolId:     aws.String(userPoolID),
		GenerateSecret: false,
	})
	if err != nil {
		return PoolClient{}, fmt.Errorf("create user pool client: %w", err)
	}

	return PoolClient{
		ClientID:   aws.ToString(out.UserPoolClient.ClientId),
		UserPoolID: aws.ToString(out.UserPoolClient.UserPoolId),
		Name:       aws.ToString(out.UserPoolClient.ClientName),
	}, nil
}

func (c *AWSClient) CreateIdentityPool(ctx context.Context, userPoolID, clientID, name string) (IdentityPool, error) {
	out, err := c.identity.CreateIdentityPool(ctx, &cognitoidentity.CreateIdentityPoolInput{
		IdentityPoolName:               aws.String(name),
		AllowUnauthenticatedIdentities: false,
		CognitoIdentityProviders: []citypes.CognitoIdentityProvider{
			{
				ClientId:             aws.String(clientID),
				ProviderName:         aws.String(c.providerName(userPoolID)),
				ServerSideTokenCheck: aws.Bool(true),
			},
		},
	})
	if err != nil {
		return IdentityPool{}, fmt.Errorf("create identity pool: %w", err)
	}

	return IdentityPool{
		ID:   aws.ToString(out.IdentityPoolId),
		Name: aws.ToString(out.IdentityPoolName),
	}, nil
}

func (c *AWSClient) CreatePolicy(ctx context.Context, name, document string) (Policy, error) {
	out, err := c.iam.CreatePolicy(ctx, &iam.CreatePolicyInput{
		PolicyName:     aws.String(name),
		PolicyDocument: aws.String(document),
	})
	if err != nil {
		return Policy{}, fmt.Errorf("create policy %q: %w", name, err)
	}

	return Policy{
		ARN:  aws.ToString(out.Policy.Arn),
		Name: aws.ToString(out.Policy.PolicyName),
	}, nil
}

func (c *AWSClient) CreateRole(ctx context.Context, name, trustDocument string) (Role, error) {
	out, err := c.iam.CreateRole(ctx, &iam.CreateRoleInput{
		RoleName:                 aws.String(name),
		AssumeRolePolicyDocument: aws.String(trustDocument),
	})
	if err != nil {
		return Role{}, fmt.Errorf("create role %q: %w", name, err)
	}

	return Role{
		ARN:  aws.ToString(out.Role.Arn),
		Name: aws.ToString(out.Role.RoleName),
	}, nil
}

func (c *AWSClient) AttachRolePolicy(ctx context.Context, policyARN, roleName string) error {
	if _, err := c.iam.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
		PolicyArn: aws.String(policyARN),
		RoleName:  aws.String(roleName),
	}); err != nil {
		return fmt.Errorf("attach policy to role %q: %w", roleName, err)
	}
	return nil
}

func (c *AWSClient) SetIdentityPoolRoles(ctx context.Context, binding RoleBinding) error {
	providerKey := c.providerName(binding.UserPoolID) + ":" + binding.ClientID

	rules := []citypes.MappingRule{
		{
			Claim:     aws.String("custom:role"),
			MatchType: citypes.MappingRuleMatchTypeEquals,
			Value:     aws.String(binding.AdminRoleKind),
			RoleARN:   aws.String(binding.AdminRoleARN),
		},
		{
			Claim:     aws.String("custom:role"),
			MatchType: citypes.MappingRuleMatchTypeEquals,
			Value:     aws.String(binding.MemberRoleKind),
			RoleARN:   aws.String(binding.MemberRoleARN),
		},
	}

	if _, err := c.identity.SetIdentityPoolRoles(ctx, &cognitoidentity.SetIdentityPoolRolesInput{
		IdentityPoolId: aws.String(binding.IdentityPoolID),
		Roles: map[string]string{
			"authenticated": binding.TrustRoleARN,
		},
		RoleMappings: map[string]citypes.RoleMapping{
			providerKey: {
				Type:                    citypes.RoleMappingTypeRules,
				AmbiguousRoleResolution: citypes.AmbiguousRoleResolutionTypeDeny,
				RulesConfiguration:      &citypes.RulesConfigurationType{Rules: rules},
			},
		},
	}); err != nil {
		return fmt.Errorf("set identity pool roles: %w", err)
	}
	return nil
}

func (c *AWSClient) CreateUser(ctx context.Context, creds auth.Credentials, user NewUser) (User, error) {
	attrs := []ciptypes.AttributeType{
		{Name: aws.String("email"), Value: aws.String(user.Email)},
		{Name: aws.String("email_verified"), Value: aws.String("true")},
		{Name: aws.String("given_name"), Value: aws.String(user.FirstName)},
		{Name: aws.String("family_name"), Value: aws.String(user.LastName)},
		{Name: aws.String("custom:tenant_id"), Value: aws.String(user.TenantID)},
		{Name: aws.String("custom:tier"), Value: aws.String(user.Tier)},
		{Name: aws.String("custom:role"), Value: aws.String(user.Role)},
	}

	out, err := c.idp.AdminCreateUser(ctx, &cognitoidentityprovider.AdminCreateUserInput{
		UserPoolId:             aws.String(user.UserPoolID),
		Username:               aws.String(user.UserName),
		DesiredDeliveryMediums: []ciptypes.DeliveryMediumType{ciptypes.DeliveryMediumTypeEmail},
		UserAttributes:         attrs,
	}, c.idpOpts(creds)...)
	if err != nil {
		return User{}, fmt.Errorf("create user %q: %w", user.UserName, err)
	}

	created := User{
		UserName: aws.ToString(out.User.Username),
		Enabled:  out.User.Enabled,
		Status:   string(out.User.UserStatus),
	}
	// First attribute in the response carries the provider-assigned subject.
	if len(out.User.Attributes) > 0 {
		created.Sub = aws.ToString(out.User.Attributes[0].Value)
	}
	return created, nil
}

func (c *AWSClient) GetUser(ctx context.Context, creds auth.Credentials, userPoolID, userName string) (User, error) {
	out, err := c.idp.AdminGetUser(ctx, &cognitoidentityprovider.AdminGetUserInput{
		UserPoolId: aws.String(userPoolID),
		Username:   aws.String(userName),
	}, c.idpOpts(creds)...)
	if err != nil {
		return User{}, fmt.Errorf("get user %q: %w", userName, err)
	}

	user := User{
		UserName: aws.ToString(out.Username),
		Enabled:  out.Enabled,
		Status:   string(out.UserStatus),
	}
	applyAttributes(&user, out.UserAttributes)
	return user, nil
}

func (c *AWSClient) ListUsers(ctx context.Context, creds auth.Credentials, userPoolID string) ([]User, error) {
	out, err := c.idp.ListUsers(ctx, &cognitoidentityprovider.ListUsersInput{
		UserPoolId: aws.String(userPoolID),
	}, c.idpOpts(creds)...)
	if err != nil {
		return nil, fmt.Errorf("list users in pool %q: %w", userPoolID, err)
	}

	users := make([]User, 0, len(out.Users))
	for _, u := range out.Users {
		user := User{
			UserName: aws.ToString(u.Username),
			Enabled:  u.Enabled,
			Status:   string(u.UserStatus),
		}
		applyAttributes(&user, u.Attributes)
		users = append(users, user)
	}
	return users, nil
}

func (c *AWSClient) UpdateUser(ctx context.Context, creds auth.Credentials, userPoolID string, update UserUpdate) error {
	attrs := []ciptypes.AttributeType{
		{Name: aws.String("given_name"), Value: aws.String(update.FirstName)},
		{Name: aws.String("family_name"), Value: aws.String(update.LastName)},
		{Name: aws.String("custom:role"), Value: aws.String(update.Role)},
	}

	if _, err := c.idp.AdminUpdateUserAttributes(ctx, &cognitoidentityprovider.AdminUpdateUserAttributesInput{
		UserPoolId:     aws.String(userPoolID),
		Username:       aws.String(update.UserName),
		UserAttributes: attrs,
	}, c.idpOpts(creds)...); err != nil {
		return fmt.Errorf("update user %q: %w", update.UserName, err)
	}
	return nil
}

func (c *AWSClient) SetUserEnabled(ctx context.Context, creds auth.Credentials, userPoolID, userName string, enabled bool) error {
	var err error
	if enabled {
		_, err = c.idp.AdminEnableUser(ctx, &cognitoidentityprovider.AdminEnableUserInput{
			UserPoolId: aws.String(userPoolID),
			Username:   aws.String(userName),
		}, c.idpOpts(creds)...)
	} else {
		_, err = c.idp.AdminDisableUser(ctx, &cognitoidentityprovider.AdminDisableUserInput{
			UserPoolId: aws.String(userPoolID),
			Username:   aws.String(userName),
		}, c.idpOpts(creds)...)
	}
	if err != nil {
		return fmt.Errorf("set user %q enabled=%t: %w", userName, enabled, err)
	}
	return nil
}

func (c *AWSClient) DeleteUser(ctx context.Context, creds auth.Credentials, userPoolID, userName string) error {
	if _, err := c.idp.AdminDeleteUser(ctx, &cognitoidentityprovider.AdminDeleteUserInput{
		UserPoolId: aws.String(userPoolID),
		Username:   aws.String(userName),
	}, c.idpOpts(creds)...); err != nil {
		return fmt.Errorf("delete user %q: %w", userName, err)
	}
	return nil
}

func (c *AWSClient) DeleteUserPool(ctx context.Context, userPoolID string) error {
	if _, err := c.idp.DeleteUserPool(ctx, &cognitoidentityprovider.DeleteUserPoolInput{
		UserPoolId: aws.String(userPoolID),
	}); err != nil {
		return fmt.Errorf("delete user pool %q: %w", userPoolID, err)
	}
	return nil
}

func (c *AWSClient) DeleteIdentityPool(ctx context.Context, identityPoolID string) error {
	if _, err := c.identity.DeleteIdentityPool(ctx, &cognitoidentity.DeleteIdentityPoolInput{
		IdentityPoolId: aws.String(identityPoolID),
	}); err != nil {
		return fmt.Errorf("delete identity pool %q: %w", identityPoolID, err)
	}
	return nil
}

func (c *AWSClient) DetachRolePolicy(ctx context.Context, policyARN, roleName string) error {
	if _, err := c.iam.DetachRolePolicy(ctx, &iam.DetachRolePolicyInput{
		PolicyArn: aws.String(policyARN),
		RoleName:  aws.String(roleName),
	}); err != nil {
		return fmt.Errorf("detach policy from role %q: %w", roleName, err)
	}
	return nil
}

func (c *AWSClient) DeletePolicy(ctx context.Context, policyARN string) error {
	if _, err := c.iam.DeletePolicy(ctx, &iam.DeletePolicyInput{
		PolicyArn: aws.String(policyARN),
	}); err != nil {
		return fmt.Errorf("delete policy %q: %w", policyARN, err)
	}
	return nil
}

func (c *AWSClient) DeleteRole(ctx context.Context, roleName string) error {
	if _, err := c.iam.DeleteRole(ctx, &iam.DeleteRoleInput{
		RoleName: aws.String(roleName),
	}); err != nil {
		return fmt.Errorf("delete role %q: %w", roleName, err)
	}
	return nil
}

// applyAttributes copies provider attributes onto the User fields they map to.
func applyAttributes(user *User, attrs []ciptypes.AttributeType) {
	for _, attr := range attrs {
		switch aws.ToString(attr.Name) {
		case "sub":
			user.Sub = aws.ToString(attr.Value)
		case "email":
			user.Email = aws.ToString(attr.Value)
		case "given_name":
			user.FirstName = aws.ToString(attr.Value)
		case "family_name":
			user.LastName = aws.ToString(attr.Value)
		case "custom:role":
			user.Role = aws.ToString(attr.Value)
		case "custom:tier":
			user.Tier = aws.ToString(attr.Value)
		}
	}
}

func (c *AWSClient) providerName(userPoolID string) string {
	return fmt.Sprintf("cognito-idp.%s.amazonaws.com/%s", c.region, userPoolID)
}

// idpOpts narrows a user CRUD call to the caller's credentials when a scoped
// credential set is supplied; zero credentials fall back to the client config.
func (c *AWSClient) idpOpts(creds auth.Credentials) []func(*cognitoidentityprovider.Options) {
	if creds.AccessKeyID == "" {
		return nil
	}
	return []func(*cognitoidentityprovider.Options){
		func(o *cognitoidentityprovider.Options) {
			o.Credentials = awscreds.NewStaticCredentialsProvider(
				creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken)
		},
	}
}
