package authsdk_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aussiebroadwan/sso/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

func TestClientSendsKeyAndMeta(t *testing.T) {
	var got *http.Request
	var body authsdk.LoginRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(authsdk.UserToken{
			User:   authsdk.User{ID: "u1", Email: "a@example.com"},
			Access: authsdk.Token{Token: "access", Expires: 3600},
		})
	}))
	defer srv.Close()

	c := authsdk.NewClient(srv.URL+"/", "svc-key")
	c.ForwardedFor = "203.0.113.9"

	out, err := c.Login(context.Background(), authsdk.LoginRequest{Email: "a@example.com", Password: "pw"})
	require.NoError(t, err)
	require.Equal(t, "u1", out.User.ID)
	require.Equal(t, int64(3600), out.Access.Expires)

	require.Equal(t, http.MethodPost, got.Method)
	require.Equal(t, "/v1/auth/local/login", got.URL.Path)
	require.Equal(t, "svc-key", got.Header.Get("Authorization"))
	require.Equal(t, "203.0.113.9", got.Header.Get("X-Forwarded-For"))
	require.Equal(t, "application/json", got.Header.Get("Content-Type"))
	require.Equal(t, "pw", body.Password)
}

func TestClientErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
		code   string
	}{
		{"unauthorised", http.StatusUnauthorized, `{"error":"unauthorised","error_description":"unauthorised"}`, authsdk.ErrUnauthorised, "unauthorised"},
		{"conflict", http.StatusConflict, `{"error":"conflict","error_description":"email taken"}`, authsdk.ErrConflict, "conflict"},
		{"not json", http.StatusBadGateway, `<html>`, authsdk.ErrServerError, "server_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := authsdk.NewClient(srv.URL, "k").GetKey(context.Background(), "01H")
			require.ErrorIs(t, err, tt.want)

			var apiErr *authsdk.APIError
			require.True(t, errors.As(err, &apiErr))
			require.Equal(t, tt.status, apiErr.StatusCode)
			require.Equal(t, tt.code, apiErr.Code)
		})
	}
}

func TestClientNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/auth/csrf", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, authsdk.NewClient(srv.URL, "k").VerifyCsrf(context.Background(), "abc"))
}

func TestClientCsrfQuery(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"key":"k","value":"v"}`))
	}))
	defer srv.Close()

	c := authsdk.NewClient(srv.URL, "k")
	expires := int64(60)
	_, err := c.CreateCsrf(context.Background(), &expires)
	require.NoError(t, err)
	require.Equal(t, "expires_s=60", query)

	_, err = c.CreateCsrf(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, "", query)
}

func TestAuditListQuery(t *testing.T) {
	var got map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		_, _ = w.Write([]byte(`{"data":[{"id":"a1","type":"sso.auth.local.login"}]}`))
	}))
	defer srv.Close()

	out, err := authsdk.NewClient(srv.URL, "k").ListAudit(context.Background(), authsdk.AuditListQuery{
		Limit: 10,
		Types: []string{"sso.auth.local.login", "sso.auth.token.refresh"},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, []string{"10"}, got["limit"])
	require.Equal(t, []string{"sso.auth.local.login", "sso.auth.token.refresh"}, got["type"])
	require.NotContains(t, got, "user_id")
}
