package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// RegisterRequest holds the signup payload. The password rule enforces the
// canonical strength policy (upper, lower, digit, symbol).
type RegisterRequest struct {
	Email             string `json:"email" validate:"required,email,max=255"`
	Password          string `json:"password" validate:"required,min=8,max=255,password"`
	ConfirmedPassword string `json:"confirmed_password" validate:"required,eqfield=Password"`
	Name              string `json:"name" validate:"omitempty,max=255"`
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse returns the issued access token and user info. The refresh
// token is deliberately absent: it travels only in the HttpOnly cookie.
type LoginResponse struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	ExpiresIn   int64    `json:"expires_in"`
	User        UserInfo `json:"user"`
}

// ForgotPasswordRequest initiates the reset flow.
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest completes the reset flow; the token arrives as a
// query parameter.
type ResetPasswordRequest struct {
	Password          string `json:"password" validate:"required,min=8,max=255,password"`
	ConfirmedPassword string `json:"confirmed_password" validate:"required,eqfield=Password"`
}

// BudgetRequest updates the user's gift budget.
type BudgetRequest struct {
	Budget float64 `json:"budget" validate:"required,gt=0"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID         string  `json:"id"`
	Email      string  `json:"email"`
	Name       *string `json:"name"`
	IsVerified bool    `json:"is_verified"`
}

// InfoFromUser projects a stored user into its response shape.
func InfoFromUser(u *User) UserInfo {
	return UserInfo{ID: u.ID, Email: u.Email, Name: u.Name, IsVerified: u.IsVerified}
}

// AccessClaims is the JWT payload for access tokens: subject, issued-at and
// expiry only. Everything else is looked up per request.
type AccessClaims struct {
	jwt.RegisteredClaims
}
