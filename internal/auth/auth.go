// Package auth authenticates staff by phone number and password and issues
// the session tokens that guard the quote endpoints.
package auth

import (
	"context"
	"errors"
	"regexp"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials covers both an unknown phone and a wrong password.
var ErrInvalidCredentials = errors.New("invalid phone or password")

var mainlandPhone = regexp.MustCompile(`^1[3-9]\d{9}$`)

// ValidPhone reports whether phone is an 11-digit mainland China mobile number.
func ValidPhone(phone string) bool { return mainlandPhone.MatchString(phone) }

// RegisterValidations adds the "cnphone" tag to v.
func RegisterValidations(v *validator.Validate) error {
	return v.RegisterValidation("cnphone", func(fl validator.FieldLevel) bool {
		return ValidPhone(fl.Field().String())
	})
}

type LoginRequest struct {
	Phone    string `json:"phone" validate:"required,cnphone"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// dummyHash is compared against when the phone is unknown so both failure
// paths cost one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("parcelquote-dummy"), bcrypt.DefaultCost)

type Service struct {
	store  Store
	tokens *Tokens
}

func NewService(store Store, tokens *Tokens) *Service {
	return &Service{store: store, tokens: tokens}
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResponse, error) {
	u, hash, ok, err := s.store.ByPhone(ctx, req.Phone)
	if err != nil {
		return LoginResponse{}, err
	}
	if !ok {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(req.Password))
		return LoginResponse{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(req.Password)); err != nil {
		return LoginResponse{}, ErrInvalidCredentials
	}
	token, err := s.tokens.Issue(u)
	if err != nil {
		return LoginResponse{}, err
	}
	return LoginResponse{User: u, Token: token}, nil
}

// Verify satisfies Verifier.
func (s *Service) Verify(token string) (*Claims, error) { return s.tokens.Verify(token) }
