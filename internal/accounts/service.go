// Package accounts handles user registration, login and profile updates.
package accounts

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned by Login for an unknown email or a wrong
// password, and by UpdateProfile for a wrong current password.
var ErrInvalidCredentials = errors.New("invalid email or password")

const bcryptCost = 10

// bcryptMaxLen is the longest input bcrypt accepts.
const bcryptMaxLen = 72

// bcryptInput shortens passwords bcrypt would reject to their base64 SHA-256
// digest. Shorter passwords are used as is.
func bcryptInput(password string) []byte {
	if len(password) <= bcryptMaxLen {
		return []byte(password)
	}
	sum := sha256.Sum256([]byte(password))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(bcryptInput(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), bcryptInput(password)) == nil
}

// Service implements account operations over a UserStore.
type Service struct {
	store  UserStore
	tokens *Tokens
}

// NewService creates a Service.
func NewService(store UserStore, tokens *Tokens) *Service {
	return &Service{store: store, tokens: tokens}
}

// Registration is a sign-up request.
type Registration struct {
	Firstname      string `json:"firstname"`
	Lastname       string `json:"lastname"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	ReferralSource string `json:"referral_source"`
}

// Session is returned after a successful login.
type Session struct {
	User      User   `json:"user"`
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// Register validates r and creates the user. Validation failures are
// returned as FieldErrors; a taken email as ErrEmailTaken.
func (s *Service) Register(ctx context.Context, r Registration) (User, error) {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Firstname = strings.TrimSpace(r.Firstname)
	r.Lastname = strings.TrimSpace(r.Lastname)

	fe := FieldErrors{}
	validateName(fe, "firstname", r.Firstname)
	validateName(fe, "lastname", r.Lastname)
	validateEmail(fe, r.Email)
	validatePassword(fe, "password", r.Password)
	if strings.TrimSpace(r.ReferralSource) == "" {
		fe["referral_source"] = "is required"
	}
	if len(fe) > 0 {
		return User{}, fe
	}

	hash, err := hashPassword(r.Password)
	if err != nil {
		return User{}, err
	}

	u := User{
		ID:             uuid.New().String(),
		Firstname:      r.Firstname,
		Lastname:       r.Lastname,
		Email:          r.Email,
		PasswordHash:   string(hash),
		ReferralSource: strings.TrimSpace(r.ReferralSource),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return User{}, err
	}
	return s.store.UserByID(ctx, u.ID)
}

// Login checks credentials and issues a session token.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return Session{}, FieldErrors{"credentials": "email and password are required"}
	}

	u, err := s.store.UserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if !checkPassword(u.PasswordHash, password) {
		return Session{}, ErrInvalidCredentials
	}

	token, exp, err := s.tokens.Issue(u.ID, u.Email)
	if err != nil {
		return Session{}, err
	}
	return Session{User: u, Token: token, ExpiresAt: exp.Unix()}, nil
}

// Authenticate resolves a session token to its user.
func (s *Service) Authenticate(ctx context.Context, token string) (User, error) {
	id, err := s.tokens.Verify(token)
	if err != nil {
		return User{}, err
	}
	u, err := s.store.UserByID(ctx, id)
	if errors.Is(err, ErrUserNotFound) {
		return User{}, ErrInvalidToken
	}
	return u, err
}

// ProfileUpdate carries the fields a user may change. Nil fields are left
// untouched. NewPassword requires CurrentPassword.
type ProfileUpdate struct {
	Firstname       *string `json:"firstname"`
	Lastname        *string `json:"lastname"`
	Avatar          *string `json:"avatar"`
	Bio             *string `json:"bio"`
	Phone           *string `json:"phone"`
	Location        *string `json:"location"`
	CurrentPassword string  `json:"current_password"`
	NewPassword     string  `json:"new_password"`
}

// UpdateProfile applies p to the user with userID.
func (s *Service) UpdateProfile(ctx context.Context, userID string, p ProfileUpdate) (User, error) {
	u, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return User{}, err
	}

	fe := FieldErrors{}
	if p.Firstname != nil {
		validateName(fe, "firstname", *p.Firstname)
		u.Firstname = *p.Firstname
	}
	if p.Lastname != nil {
		validateName(fe, "lastname", *p.Lastname)
		u.Lastname = *p.Lastname
	}
	if p.Bio != nil {
		if len(*p.Bio) > 500 {
			fe["bio"] = "must be at most 500 characters"
		}
		u.Bio = *p.Bio
	}
	if p.Avatar != nil {
		u.Avatar = *p.Avatar
	}
	if p.Phone != nil {
		u.Phone = *p.Phone
	}
	if p.Location != nil {
		u.Location = *p.Location
	}
	if p.NewPassword != "" {
		if p.CurrentPassword == "" {
			fe["current_password"] = "is required to change the password"
		} else {
			validatePassword(fe, "new_password", p.NewPassword)
		}
	}
	if len(fe) > 0 {
		return User{}, fe
	}

	if p.NewPassword != "" {
		if !checkPassword(u.PasswordHash, p.CurrentPassword) {
			return User{}, ErrInvalidCredentials
		}
		hash, err := hashPassword(p.NewPassword)
		if err != nil {
			return User{}, err
		}
		u.PasswordHash = hash
	}

	if err := s.store.UpdateUser(ctx, u); err != nil {
		return User{}, err
	}
	return s.store.UserByID(ctx, userID)
}
