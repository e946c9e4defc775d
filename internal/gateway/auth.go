package gateway

import (
	"context"
	"net/url"

	sessiondomain "scratcha-console/client/internal/session/domain"
)

// TokenGrant is the token response from login and signup.
type TokenGrant struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
}

// Login authenticates with the OAuth2 password form shape the backend
// expects (email sent as username). Returns the issued grant.
func (c *Client) Login(ctx context.Context, email, password string) (*TokenGrant, error) {
	form := url.Values{}
	form.Set("grant_type", "")
	form.Set("username", email)
	form.Set("password", password)
	form.Set("scope", "")
	form.Set("client_id", "")
	form.Set("client_secret", "")

	var grant TokenGrant
	if err := c.postForm(ctx, "/api/dashboard/auth/login", form, &grant); err != nil {
		return nil, err
	}
	return &grant, nil
}

// Signup registers a new account and returns the issued grant (201 on success).
func (c *Client) Signup(ctx context.Context, email, password, userName string) (*TokenGrant, error) {
	in := map[string]string{
		"email":    email,
		"password": password,
		"userName": userName,
	}
	var grant TokenGrant
	if err := c.postJSON(ctx, "/api/dashboard/users/signup", nil, in, &grant); err != nil {
		return nil, err
	}
	return &grant, nil
}

// Logout invalidates the session server-side. Callers treat failure as
// best-effort and clear local state regardless.
func (c *Client) Logout(ctx context.Context) error {
	return c.postJSON(ctx, "/api/dashboard/auth/logout", nil, nil, nil)
}

// Profile fetches the current user's profile using the stored token.
func (c *Client) Profile(ctx context.Context) (*sessiondomain.User, error) {
	var u sessiondomain.User
	if err := c.getJSON(ctx, "/api/dashboard/users/me", &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateUserName patches the profile's display name.
func (c *Client) UpdateUserName(ctx context.Context, userName string) error {
	return c.patchJSON(ctx, "/api/dashboard/users/me", map[string]string{"userName": userName})
}

// DeleteAccount soft-deletes the current account.
func (c *Client) DeleteAccount(ctx context.Context) error {
	return c.delete(ctx, "/api/dashboard/users/me")
}
