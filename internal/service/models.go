package service

import "github.com/odilabs/odi-auth/internal/domain"

// TokenPair is the login response: a signed access token, a store-backed
// refresh token, and the authenticated user's profile.
type TokenPair struct {
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
	TokenType    string        `json:"tokenType"`
	ExpiresIn    int           `json:"expiresIn"`
	User         UserViewModel `json:"user"`
}

// RefreshResult carries the re-minted access token.
type RefreshResult struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int    `json:"expiresIn"`
}

// UserViewModel is the lightweight profile returned to clients.
type UserViewModel struct {
	ID       int64       `json:"id"`
	Odacc    string      `json:"odacc"`
	Nickname string      `json:"nickname"`
	Email    string      `json:"email"`
	Avatar   string      `json:"avatar,omitempty"`
	Role     domain.Role `json:"role"`
}

// RegisterInput is the signup payload. Birthday uses YYYY-MM-DD.
type RegisterInput struct {
	Email           string
	Code            string
	Password        string
	ConfirmPassword string
	Nickname        string
	Address         string
	Birthday        string
	Gender          string
}

// RegisterResult reports the created account.
type RegisterResult struct {
	UserID int64  `json:"id"`
	Odacc  string `json:"odacc"`
}

// LoginInput carries the identifier (email or ODACC) plus exactly one
// credential: a password or a login verification code.
type LoginInput struct {
	Identifier string
	Password   string
	Code       string
}

func viewOf(user domain.User) UserViewModel {
	return UserViewModel{
		ID:       user.ID,
		Odacc:    user.Odacc,
		Nickname: user.Nickname,
		Email:    user.Email,
		Avatar:   user.AvatarURL,
		Role:     user.Role,
	}
}
