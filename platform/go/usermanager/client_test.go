package usermanager

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookupPool(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		switch r.URL.Path {
		case "/user/pool/alice@acme.com":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{
				"id":         "alice@acme.com",
				"tenant_id":  "TENANT1",
				"UserPoolId": "pool-1",
			})
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"Error": "User not found"}`))
		}
	}))
	defer server.Close()

	client := New(server.URL, nil)

	record, err := client.LookupPool(context.Background(), "alice@acme.com")
	require.NoError(t, err)
	require.Equal(t, "TENANT1", record.TenantID)
	require.Equal(t, "pool-1", record.UserPoolID)

	_, err = client.LookupPool(context.Background(), "ghost@acme.com")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestProvisionTenantAdmin(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/user/reg", r.URL.Path)

		var req AdminRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "TENANT1", req.TenantID)
		require.Equal(t, "owner@acme.com", req.UserName)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"userPoolId":"pool-1","identityPoolId":"idpool-1","adminRoleName":"TENANT1-TenantAdmin"}`))
	}))
	defer server.Close()

	client := New(server.URL, nil)
	result, err := client.ProvisionTenantAdmin(context.Background(), AdminRequest{
		TenantID: "TENANT1",
		UserName: "owner@acme.com",
		Tier:     "gold",
	})
	require.NoError(t, err)
	require.Equal(t, "pool-1", result.UserPoolID)
	require.Equal(t, "idpool-1", result.IdentityPoolID)
	require.Equal(t, "TENANT1-TenantAdmin", result.AdminRoleName)
}

func TestProvisionSystemAdminErrorMapping(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("Error provisioning system admin user"))
	}))
	defer server.Close()

	client := New(server.URL, nil)
	_, err := client.ProvisionSystemAdmin(context.Background(), AdminRequest{UserName: "root@saas.com"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "Error provisioning system admin user")
	require.Contains(t, err.Error(), "400")
}

func TestDeleteTenants(t *testing.T) {
	t.Parallel()

	var called bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/user/tenants", r.URL.Path)
		_, _ = w.Write([]byte("Success"))
	}))
	defer server.Close()

	client := New(server.URL, nil)
	require.NoError(t, client.DeleteTenants(context.Background()))
	require.True(t, called)
}
