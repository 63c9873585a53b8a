package client

import (
	"context"
	"net/http"
	"strings"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// Upstream session cookie names
const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)

// Credentials are the upstream session cookies held for one visitor
type Credentials struct {
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

func (c Credentials) IsZero() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}

func (c Credentials) cookies() []*http.Cookie {
	var out []*http.Cookie
	if c.AccessToken != "" {
		out = append(out, &http.Cookie{Name: AccessTokenCookie, Value: c.AccessToken})
	}
	if c.RefreshToken != "" {
		out = append(out, &http.Cookie{Name: RefreshTokenCookie, Value: c.RefreshToken})
	}
	return out
}

// merge applies Set-Cookie headers of resp on top of c. Cleared cookies
// (empty value or negative MaxAge) drop the stored token.
func (c Credentials) merge(resp *http.Response) Credentials {
	if resp == nil {
		return c
	}
	for _, ck := range resp.Cookies() {
		value := ck.Value
		if ck.MaxAge < 0 {
			value = ""
		}
		switch ck.Name {
		case AccessTokenCookie:
			c.AccessToken = value
		case RefreshTokenCookie:
			c.RefreshToken = value
		}
	}
	return c
}

// RegisterRequest carries the registration form
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone,omitempty"`
}

// remoteUser is the user representation of the auth service. Older
// endpoints only send a combined name.
type remoteUser struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone"`
	Role      string `json:"role"`
}

func (u *remoteUser) toUser() *models.User {
	if u == nil || u.ID == "" {
		return nil
	}
	first, last := u.FirstName, u.LastName
	if first == "" && last == "" && u.Name != "" {
		parts := strings.SplitN(strings.TrimSpace(u.Name), " ", 2)
		first = parts[0]
		if len(parts) == 2 {
			last = parts[1]
		}
	}
	return &models.User{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: first,
		LastName:  last,
		Phone:     u.Phone,
		Role:      u.Role,
	}
}

type userEnvelope struct {
	User *remoteUser `json:"user"`
}

// AuthClient talks to the session endpoints of the auth service
type AuthClient struct {
	base
}

// NewAuthClient creates an auth client. nil logger disables logging.
func NewAuthClient(baseURL string, timeout time.Duration, logger *zap.Logger) *AuthClient {
	return &AuthClient{base: newBase(baseURL, timeout, logger)}
}

// Me returns the user of creds' session. A session without a user yields
// (nil, creds, nil); an expired one a 401 StatusError.
func (c *AuthClient) Me(ctx context.Context, creds Credentials) (*models.User, Credentials, error) {
	ctx, span := util.StartSpan(ctx, "AuthClient.Me")
	defer span.End()

	var out userEnvelope
	resp, err := c.do(ctx, request{
		method:  http.MethodGet,
		path:    "/api/v1/auth/me",
		cookies: creds.cookies(),
	}, &out)
	creds = creds.merge(resp)
	if err != nil {
		return nil, creds, err
	}
	return out.User.toUser(), creds, nil
}

// Login posts email and password and returns the user and new session cookies
func (c *AuthClient) Login(ctx context.Context, email, password string) (*models.User, Credentials, error) {
	ctx, span := util.StartSpan(ctx, "AuthClient.Login")
	defer span.End()

	var out userEnvelope
	resp, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/v1/auth/login",
		body:   map[string]string{"email": email, "password": password},
	}, &out)
	creds := Credentials{}.merge(resp)
	if err != nil {
		return nil, creds, err
	}
	return out.User.toUser(), creds, nil
}

// Register creates an account and opens its session
func (c *AuthClient) Register(ctx context.Context, req RegisterRequest) (*models.User, Credentials, error) {
	ctx, span := util.StartSpan(ctx, "AuthClient.Register")
	defer span.End()

	body := struct {
		RegisterRequest
		Name string `json:"name"`
	}{req, strings.TrimSpace(req.FirstName + " " + req.LastName)}

	var out userEnvelope
	resp, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/v1/auth/signup",
		body:   body,
	}, &out)
	creds := Credentials{}.merge(resp)
	if err != nil {
		return nil, creds, err
	}
	return out.User.toUser(), creds, nil
}

// Logout revokes the upstream session
func (c *AuthClient) Logout(ctx context.Context, creds Credentials) error {
	ctx, span := util.StartSpan(ctx, "AuthClient.Logout")
	defer span.End()

	_, err := c.do(ctx, request{
		method:  http.MethodPost,
		path:    "/api/v1/auth/logout",
		cookies: creds.cookies(),
	}, nil)
	return err
}

// Refresh rotates the session cookies using the refresh token
func (c *AuthClient) Refresh(ctx context.Context, creds Credentials) (Credentials, error) {
	ctx, span := util.StartSpan(ctx, "AuthClient.Refresh")
	defer span.End()

	resp, err := c.do(ctx, request{
		method:  http.MethodPost,
		path:    "/api/v1/auth/refresh",
		cookies: creds.cookies(),
	}, nil)
	return creds.merge(resp), err
}
