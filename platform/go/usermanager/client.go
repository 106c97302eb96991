// Package usermanager is the JSON/HTTP client the registration services use
// to call the user-manager service.
package usermanager

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cloudward/saas-identity/domains/users/be/provisioning"
	"github.com/cloudward/saas-identity/platform/go/records"
)

// ErrUserNotFound is returned by LookupPool when no pool record matches.
var ErrUserNotFound = errors.New("user not found")

// AdminRequest is the payload for the admin-provisioning endpoints.
type AdminRequest struct {
	TenantID  string `json:"tenant_id"`
	UserName  string `json:"userName"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Tier      string `json:"tier"`
}

// Client calls the user-manager service.
type Client struct {
	baseURL string
	http    *http.Client
}

// New constructs a Client for the given user-manager base URL. A nil
// httpClient falls back to a client with a 30s timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// LookupPool fetches the pool record for a user name in system context.
// A 400 from the user manager means no record exists.
func (c *Client) LookupPool(ctx context.Context, userName string) (records.UserRecord, error) {
	var record records.UserRecord
	err := c.do(ctx, http.MethodGet, "/user/pool/"+url.PathEscape(userName), nil, &record)
	if err != nil {
		var status *statusError
		if errors.As(err, &status) && status.code == http.StatusBadRequest {
			return records.UserRecord{}, ErrUserNotFound
		}
		return records.UserRecord{}, err
	}
	return record, nil
}

// ProvisionTenantAdmin provisions a tenant admin user with its roles and
// policies.
func (c *Client) ProvisionTenantAdmin(ctx context.Context, req AdminRequest) (provisioning.Result, error) {
	var result provisioning.Result
	if err := c.do(ctx, http.MethodPost, "/user/reg", req, &result); err != nil {
		return provisioning.Result{}, err
	}
	return result, nil
}

// ProvisionSystemAdmin provisions a system admin user with its roles and
// policies.
func (c *Client) ProvisionSystemAdmin(ctx context.Context, req AdminRequest) (provisioning.Result, error) {
	var result provisioning.Result
	if err := c.do(ctx, http.MethodPost, "/user/system", req, &result); err != nil {
		return provisioning.Result{}, err
	}
	return result, nil
}

// DeleteTenants triggers teardown of all provisioned tenant infrastructure.
func (c *Client) DeleteTenants(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/user/tenants", nil, nil)
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("user manager returned %d: %s", e.code, e.body)
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call user manager: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if res.StatusCode != http.StatusOK {
		return &statusError{code: res.StatusCode, body: strings.TrimSpace(string(raw))}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
