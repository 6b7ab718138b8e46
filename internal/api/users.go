package api

import (
	"context"
	"fmt"
	"net/http"
)

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// LoginResult is the user service's flat login payload.
type LoginResult struct {
	Message  string `json:"message"`
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// ProfileUpdate carries optional fields for PUT /users/{id}; empty fields are
// left untouched by the service.
type ProfileUpdate struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
}

func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	body := map[string]string{"email": email, "password": password}
	var out LoginResult
	err := c.doJSON(ctx, ServiceUser, http.MethodPost, "/users/login", body, &out)
	return out, err
}

func (c *Client) Register(ctx context.Context, username, email, password string) (User, error) {
	body := map[string]string{"username": username, "email": email, "password": password}
	var out struct {
		Message string `json:"message"`
		User    User   `json:"user"`
	}
	err := c.doJSON(ctx, ServiceUser, http.MethodPost, "/users/register", body, &out)
	return out.User, err
}

func (c *Client) GetUser(ctx context.Context, id int64) (User, error) {
	var out User
	err := c.doJSON(ctx, ServiceUser, http.MethodGet, fmt.Sprintf("/users/%d", id), nil, &out)
	return out, err
}

func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var out []User
	err := c.doJSON(ctx, ServiceUser, http.MethodGet, "/users", nil, &out)
	return out, err
}

func (c *Client) UpdateProfile(ctx context.Context, id int64, update ProfileUpdate) (User, error) {
	var out struct {
		Message string `json:"message"`
		User    User   `json:"user"`
	}
	err := c.doJSON(ctx, ServiceUser, http.MethodPut, fmt.Sprintf("/users/%d", id), update, &out)
	return out.User, err
}

func (c *Client) DeleteUser(ctx context.Context, id int64) error {
	return c.doJSON(ctx, ServiceUser, http.MethodDelete, fmt.Sprintf("/users/%d", id), nil, nil)
}
