package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"techpost/internal/engage"
)

type userJSON struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (u userJSON) identity() engage.Identity {
	return engage.Identity{ID: u.ID, Name: u.Name, Email: u.Email}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Message string   `json:"message"`
	Token   string   `json:"token"`
	User    userJSON `json:"user"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type meResponse struct {
	User userJSON `json:"user"`
}

// Login exchanges email and password for an identity and token.
func (c *Client) Login(ctx context.Context, email, password string) (engage.Identity, engage.Credential, error) {
	var resp loginResponse
	if err := c.post(ctx, "/api/login", "", loginRequest{Email: email, Password: password}, &resp); err != nil {
		return engage.Identity{}, "", authError("login", err)
	}
	if resp.Token == "" {
		return engage.Identity{}, "", &engage.RemoteError{Op: "login", Err: fmt.Errorf("%w: response has no token", engage.ErrRemoteFailure)}
	}
	return resp.User.identity(), engage.Credential(resp.Token), nil
}

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, name, email, password string) error {
	req := registerRequest{Email: email, Name: name, Password: password}
	if err := c.post(ctx, "/api/register", "", req, nil); err != nil {
		return authError("register", err)
	}
	return nil
}

// WhoAmI returns the identity behind cred.
func (c *Client) WhoAmI(ctx context.Context, cred engage.Credential) (engage.Identity, error) {
	var resp meResponse
	if err := c.get(ctx, "/api/me", cred, &resp); err != nil {
		return engage.Identity{}, gatedError("whoami", err)
	}
	return resp.User.identity(), nil
}

// authError reports refused logins and registrations (400, 401) as
// *engage.AuthError with the server's message.
func authError(op string, err error) error {
	var se *statusError
	if errors.As(err, &se) && (se.StatusCode == http.StatusBadRequest || se.StatusCode == http.StatusUnauthorized) {
		return &engage.AuthError{StatusCode: se.StatusCode, Message: se.Message}
	}
	return remoteError(op, err)
}
