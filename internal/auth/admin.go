package auth

import (
	"crypto/subtle"
	"errors"
	"log"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAdminDisabled      = errors.New("admin console is not configured")
)

// TokenPair is returned by a successful login or refresh
type TokenPair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Admin checks the single configured console account
type Admin struct {
	username     string
	passwordHash string
	tokens       *JWTService
}

func NewAdmin(username, passwordHash string, tokens *JWTService) *Admin {
	return &Admin{username: username, passwordHash: passwordHash, tokens: tokens}
}

func (a *Admin) Enabled() bool {
	return a.username != "" && a.passwordHash != ""
}

// Login verifies the credentials and issues a token pair
func (a *Admin) Login(username, password string) (*TokenPair, error) {
	if !a.Enabled() {
		return nil, ErrAdminDisabled
	}
	sameUser := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	if !CheckPassword(password, a.passwordHash) || !sameUser {
		log.Printf("[Auth] Failed admin login for %q", username)
		return nil, ErrInvalidCredentials
	}
	return a.issue()
}

// Refresh exchanges a refresh token for a new pair
func (a *Admin) Refresh(refreshToken string) (*TokenPair, error) {
	if !a.Enabled() {
		return nil, ErrAdminDisabled
	}
	username, err := a.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}
	if username != a.username {
		return nil, ErrInvalidToken
	}
	return a.issue()
}

func (a *Admin) issue() (*TokenPair, error) {
	access, expiresAt, err := a.tokens.GenerateAccessToken(a.username, RoleAdmin)
	if err != nil {
		return nil, err
	}
	refresh, _, err := a.tokens.GenerateRefreshToken(a.username)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresAt: expiresAt}, nil
}
