package authsdk

import (
	"net/http"
	"strings"
	"time"
)

// Client calls the SSO API with one key. Services use their service key,
// operators a root key.
type Client struct {
	BaseURL    string
	Key        string
	HTTPClient *http.Client

	// UserAgent and ForwardedFor are sent on every request and end up in
	// the audit trail. Services set ForwardedFor to their end user's address.
	UserAgent    string
	ForwardedFor string
}

// NewClient creates a client for baseURL authenticating with key.
func NewClient(baseURL, key string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Key:     key,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		UserAgent: "authsdk",
	}
}

// WithKey returns a copy of c using key.
func (c *Client) WithKey(key string) *Client {
	cp := *c
	cp.Key = key
	return &cp
}
