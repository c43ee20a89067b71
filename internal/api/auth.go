package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/rickgao/papertrade/internal/model"
)

// ErrMissingToken is returned when the service accepts credentials but issues no token.
var ErrMissingToken = errors.New("response carried no token")

// AuthResponse is returned by /login and /signup.
type AuthResponse struct {
	Token   string `json:"token"`
	Message string `json:"message,omitempty"`
}

// TokenStatus is returned by /verify-token.
type TokenStatus struct {
	Valid  bool  `json:"valid"`
	UserID int64 `json:"user_id,omitempty"`
}

// MessageResponse is a bare {"message": "..."} acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// Login exchanges credentials for a bearer token. The token is returned, not
// installed; the caller decides when to commit it with SetToken.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	body := map[string]string{
		"email":    email,
		"password": password,
	}

	var resp AuthResponse
	if err := c.post(ctx, "/login", body, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", ErrMissingToken
	}
	return resp.Token, nil
}

// Signup creates an account and returns its bearer token without installing it.
func (c *Client) Signup(ctx context.Context, reg model.Registration) (string, error) {
	var resp AuthResponse
	if err := c.post(ctx, "/signup", reg, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", ErrMissingToken
	}
	return resp.Token, nil
}

// Me returns the identity behind the installed token.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	return c.MeWithToken(ctx, c.Token())
}

// MeWithToken returns the identity behind token without installing it.
func (c *Client) MeWithToken(ctx context.Context, token string) (*model.User, error) {
	var user model.User
	if err := c.do(ctx, http.MethodGet, "/me", token, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Profile returns the full profile of the current user.
func (c *Client) Profile(ctx context.Context) (*model.User, error) {
	var user model.User
	if err := c.get(ctx, "/profile", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateProfile changes the editable profile fields and returns the server acknowledgement.
func (c *Client) UpdateProfile(ctx context.Context, update model.ProfileUpdate) (string, error) {
	var resp MessageResponse
	if err := c.put(ctx, "/profile", update, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// VerifyToken asks the service whether token is still valid.
func (c *Client) VerifyToken(ctx context.Context, token string) (*TokenStatus, error) {
	body := map[string]string{"token": token}

	var status TokenStatus
	if err := c.post(ctx, "/verify-token", body, &status); err != nil {
		return nil, err
	}
	return &status, nil
}
