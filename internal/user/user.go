// Package user holds account records and login verification.
package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"edutend/internal/store"
)

// Roles. The role gates which session-management endpoints a token opens.
const (
	RoleAdmin    = "Admin"
	RoleLecturer = "Lecturer"
	RoleStudent  = "Student"
)

var (
	// ErrInvalidCredentials is returned for a wrong email or password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrEmailTaken is returned when signing up an existing email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidRole is returned for a role outside the known set.
	ErrInvalidRole = errors.New("unknown role")
)

// User is one account. PasswordHash is bcrypt; the plaintext never
// persists.
type User struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Role         string     `json:"role"`
	PasswordHash string     `json:"passwordHash"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
}

// Store keeps the users collection in the KV substrate.
type Store struct {
	kv store.KV
	mu sync.Mutex
}

// NewStore creates a user store over kv.
func NewStore(kv store.KV) *Store {
	return &Store{kv: kv}
}

// SignUp registers an account with a hashed password.
func (s *Store) SignUp(ctx context.Context, name, email, role, password string) (User, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" || password == "" {
		return User{}, errors.New("name, email and password required")
	}
	if role != RoleAdmin && role != RoleLecturer && role != RoleStudent {
		return User{}, ErrInvalidRole
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	users, err := s.list(ctx)
	if err != nil {
		return User{}, err
	}
	for _, u := range users {
		if u.Email == email {
			return User{}, ErrEmailTaken
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	u := User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		Role:         role,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	users = append(users, u)
	if err := s.save(ctx, users); err != nil {
		return User{}, err
	}
	return u, nil
}

// Login verifies credentials and stamps LastLogin on success.
func (s *Store) Login(ctx context.Context, email, password string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	s.mu.Lock()
	defer s.mu.Unlock()
	users, err := s.list(ctx)
	if err != nil {
		return User{}, err
	}
	for i, u := range users {
		if u.Email != email {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
			return User{}, ErrInvalidCredentials
		}
		now := time.Now().UTC()
		users[i].LastLogin = &now
		if err := s.save(ctx, users); err != nil {
			log.Printf("user store: last-login stamp failed: %v", err)
		}
		return users[i], nil
	}
	return User{}, ErrInvalidCredentials
}

// Get returns a user by ID, or (nil, nil) when unknown.
func (s *Store) Get(ctx context.Context, id string) (*User, error) {
	users, err := s.list(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].ID == id {
			return &users[i], nil
		}
	}
	return nil, nil
}

func (s *Store) list(ctx context.Context) ([]User, error) {
	raw, err := s.kv.Get(ctx, store.KeyUsers)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var users []User
	if err := json.Unmarshal(raw, &users); err != nil {
		log.Printf("user store: corrupt collection, treating as empty: %v", err)
		return nil, nil
	}
	return users, nil
}

func (s *Store) save(ctx context.Context, users []User) error {
	raw, err := json.Marshal(users)
	if err != nil {
		return fmt.Errorf("marshal users: %w", err)
	}
	if err := s.kv.Set(ctx, store.KeyUsers, raw); err != nil {
		return fmt.Errorf("persist users: %w", err)
	}
	return nil
}
