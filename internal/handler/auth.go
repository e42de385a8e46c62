package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/edusmart-auth/internal/middleware"
	"github.com/iliyamo/edusmart-auth/internal/model"
	"github.com/iliyamo/edusmart-auth/internal/service"
	"github.com/iliyamo/edusmart-auth/internal/utils"
)

// Accounts is the saga as seen by the HTTP layer.
type Accounts interface {
	Register(ctx context.Context, req service.RegisterRequest) (*service.RegisterResult, error)
	VerifyAccount(ctx context.Context, token string) (*service.VerifyResult, error)
	Login(ctx context.Context, email, password string) (*service.LoginResult, error)
	Profile(ctx context.Context, accountID string) (model.AccountCollection, error)
	Roles(ctx context.Context) ([]model.Role, error)
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Accounts  Accounts
	JWTSecret string
	AccessTTL time.Duration
	// Timeout bounds each saga call, profile round trip included.
	Timeout time.Duration
}

func NewAuthHandler(accounts Accounts, jwtSecret string, accessTTL time.Duration) *AuthHandler {
	return &AuthHandler{Accounts: accounts, JWTSecret: jwtSecret, AccessTTL: accessTTL, Timeout: 15 * time.Second}
}

// ----- DTOs -----

type registerReq struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type verifyReq struct {
	Token string `json:"token"`
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type userPart struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

type rolePart struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Register: create an unconfirmed student account; the verification key
// goes out by email.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	res, err := h.Accounts.Register(ctx, service.RegisterRequest{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"success":      true,
		"message_code": res.MessageCode,
		"message":      "registered, check your email to verify the account",
		"account_id":   res.AccountID,
	})
}

// Verify redeems the emailed token.
func (h *AuthHandler) Verify(c echo.Context) error {
	var req verifyReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	if req.Token == "" {
		req.Token = c.QueryParam("token")
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	res, err := h.Accounts.VerifyAccount(ctx, req.Token)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":           true,
		"message_code":      res.MessageCode,
		"message":           "email verified",
		"account_id":        res.AccountID,
		"already_confirmed": res.AlreadyConfirmed,
	})
}

// Login checks credentials and issues an access token.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusUnprocessableEntity, body(service.CodeValidation, "email and password are required"))
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	res, err := h.Accounts.Login(ctx, req.Email, req.Password)
	if err != nil {
		return fail(c, err)
	}
	access, err := utils.NewAccessToken(h.JWTSecret, res.UserID, res.RoleName, h.AccessTTL, time.Now())
	if err != nil {
		c.Logger().Errorf("issue access token: %v", err)
		return c.JSON(http.StatusInternalServerError, body(service.CodeSystem, "could not issue token"))
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":      true,
		"message_code": service.CodeSuccess,
		"user": userPart{
			ID:       res.UserID,
			Email:    res.Email,
			FullName: res.FullName,
			Role:     res.RoleName,
		},
		"access": tokenPart{Token: access.Token, Expires: access.Exp},
	})
}

// Me returns the caller's projection.
func (h *AuthHandler) Me(c echo.Context) error {
	ctx, cancel := h.ctx(c)
	defer cancel()

	doc, err := h.Accounts.Profile(ctx, middleware.UserID(c))
	if err != nil {
		return fail(c, err)
	}
	role := ""
	if doc.Role != nil {
		role = doc.Role.Name
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"user": userPart{
			ID:       doc.AccountID,
			Email:    doc.Email,
			FullName: doc.UserInformation.FullName(),
			Role:     role,
		},
		"email_confirmed": doc.EmailConfirmed,
	})
}

// Roles lists the reference roles.
func (h *AuthHandler) Roles(c echo.Context) error {
	ctx, cancel := h.ctx(c)
	defer cancel()

	roles, err := h.Accounts.Roles(ctx)
	if err != nil {
		return fail(c, err)
	}
	out := make([]rolePart, 0, len(roles))
	for _, r := range roles {
		out = append(out, rolePart{ID: r.ID, Name: r.Name})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "roles": out})
}

func (h *AuthHandler) ctx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), h.Timeout)
}
