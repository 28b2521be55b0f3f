package httpx_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aussiebroadwan/sso/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) httpx.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := httpx.Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}), mark("first"), mark("second"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"first", "second", "handler"}, order)
}

func TestRequireKey(t *testing.T) {
	var seen string
	h := httpx.RequireKey()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = httpx.KeyValueFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		code   int
		key    string
	}{
		{"bare key", "abc", http.StatusNoContent, "abc"},
		{"bearer key", "Bearer abc", http.StatusNoContent, "abc"},
		{"lowercase bearer", "bearer abc", http.StatusNoContent, "abc"},
		{"missing", "", http.StatusUnauthorized, ""},
		{"bearer only", "Bearer ", http.StatusUnauthorized, ""},
		{"bearer without space", "BEARER", http.StatusUnauthorized, ""},
		{"bearer padded", "Bearer   abc  ", http.StatusNoContent, "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, tt.code, rec.Code)
			require.Equal(t, tt.key, seen)
			if tt.code == http.StatusUnauthorized {
				var body map[string]string
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				require.Equal(t, "unauthorised", body["error"])
				require.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	tests := []struct {
		name    string
		body    string
		ct      string
		want    string
		wantErr bool
	}{
		{"object", `{"name":"a"}`, "application/json", "a", false},
		{"charset", `{"name":"a"}`, "application/json; charset=utf-8", "a", false},
		{"no content type", `{"name":"a"}`, "", "a", false},
		{"empty body", ``, "application/json", "", false},
		{"wrong content type", `{"name":"a"}`, "text/plain", "", true},
		{"malformed", `{"name":`, "application/json", "", true},
		{"trailing", `{"name":"a"}{"name":"b"}`, "application/json", "", true},
		{"too large", `{"name":"` + strings.Repeat("a", httpx.MaxBodyBytes) + `"}`, "application/json", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			if tt.ct != "" {
				req.Header.Set("Content-Type", tt.ct)
			}
			var p payload
			err := httpx.DecodeJSON(httptest.NewRecorder(), req, &p)
			if tt.wantErr {
				require.ErrorIs(t, err, httpx.ErrInvalidBody)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, p.Name)
		})
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	httpx.WriteError(rec, http.StatusConflict, "conflict", "already exists")

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	require.JSONEq(t, `{"error":"conflict","error_description":"already exists"}`, rec.Body.String())
}
