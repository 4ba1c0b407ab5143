package transport

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/Skotchmaster/authsvc/internal/models"
	"github.com/Skotchmaster/authsvc/internal/service"
)

type RegisterRequest struct {
	LastName  string `json:"lastName"`
	FirstName string `json:"firstName"`
	Email     string `json:"email"`
	Login     string `json:"login"`
	Password  string `json:"password"`
}

func (r *RegisterRequest) Normalize() {
	r.LastName = strings.TrimSpace(r.LastName)
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.Email = strings.TrimSpace(r.Email)
	r.Login = strings.TrimSpace(r.Login)
}

func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Length(0, 100)),
		validation.Field(&r.LastName, validation.Length(0, 100)),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Login, validation.Required, validation.Length(3, 50)),
		validation.Field(&r.Password, validation.Required, validation.Length(3, 72)),
	)
}

func (r RegisterRequest) Input() service.RegisterInput {
	return service.RegisterInput{
		LastName:  r.LastName,
		FirstName: r.FirstName,
		Email:     r.Email,
		Login:     r.Login,
		Password:  r.Password,
	}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Login    string `json:"login"`
	Password string `json:"password"`
}

func (r *LoginRequest) Normalize() {
	r.Email = strings.TrimSpace(r.Email)
	r.Login = strings.TrimSpace(r.Login)
}

func (r LoginRequest) Validate() error {
	emailRules := []validation.Rule{is.Email}
	var loginRules []validation.Rule
	if r.Login == "" {
		emailRules = append(emailRules, validation.Required)
	}
	if r.Email == "" {
		loginRules = append(loginRules, validation.Required)
	}
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, emailRules...),
		validation.Field(&r.Login, loginRules...),
		validation.Field(&r.Password, validation.Required),
	)
}

func (r LoginRequest) Input() service.LoginInput {
	return service.LoginInput{Email: r.Email, Login: r.Login, Password: r.Password}
}

type RoleRequest struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

func (r RoleRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ID, validation.Required, is.UUID),
		validation.Field(&r.Role, validation.Required, validation.Length(2, 32)),
	)
}

// AuthResponse is the body of registration, login and refresh.
type AuthResponse struct {
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken"`
	User         models.UserView `json:"user"`
	Warnings     []string        `json:"warnings,omitempty"`
}

func NewAuthResponse(res *service.AuthResult) AuthResponse {
	return AuthResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		User:         res.User,
		Warnings:     res.Warnings,
	}
}

type LogoutResponse struct {
	Deleted int64 `json:"deleted"`
}

type SearchResponse struct {
	Total int64             `json:"total"`
	Users []models.UserView `json:"users"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}
