package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"parcelquote/internal/config"
)

const (
	RoleAdmin    = "admin"
	RoleEmployee = "employee"
)

// User is a staff account as returned to clients; the hash never leaves the store.
type User struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Role       string `json:"role"`
	Department string `json:"department,omitempty"`
}

type account struct {
	User
	passwordHash []byte
}

// Store looks up accounts by phone number.
type Store interface {
	ByPhone(ctx context.Context, phone string) (User, []byte, bool, error)
}

// MemoryStore keeps accounts in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	byPhone map[string]account
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byPhone: make(map[string]account)}
}

// Add registers a user with an existing bcrypt hash.
func (s *MemoryStore) Add(u User, passwordHash string) error {
	if strings.TrimSpace(u.Phone) == "" {
		return fmt.Errorf("user %q has no phone", u.ID)
	}
	if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
		return fmt.Errorf("user %q: invalid password hash: %w", u.ID, err)
	}
	if u.Role == "" {
		u.Role = RoleEmployee
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.byPhone[u.Phone]; dup {
		return fmt.Errorf("duplicate phone %s", u.Phone)
	}
	s.byPhone[u.Phone] = account{User: u, passwordHash: []byte(passwordHash)}
	return nil
}

// AddWithPassword hashes password and registers the user.
func (s *MemoryStore) AddWithPassword(u User, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.Add(u, string(hash))
}

func (s *MemoryStore) ByPhone(_ context.Context, phone string) (User, []byte, bool, error) {
	s.mu.RLock()
	a, ok := s.byPhone[phone]
	s.mu.RUnlock()
	if !ok {
		return User{}, nil, false, nil
	}
	return a.User, a.passwordHash, true, nil
}

var demoUsers = []struct {
	user     User
	password string
}{
	{User{ID: "admin", Name: "系统管理员", Phone: "18888888888", Role: RoleAdmin, Department: "管理部"}, "admin123456"},
	{User{ID: "emp001", Name: "张三", Phone: "13900000001", Role: RoleEmployee, Department: "销售部"}, "123456"},
	{User{ID: "emp002", Name: "李四", Phone: "13900000002", Role: RoleEmployee, Department: "客服部"}, "123456"},
}

// StoreFromConfig loads configured users and, when enabled, the demo accounts.
func StoreFromConfig(cfg config.AuthConfig) (*MemoryStore, error) {
	s := NewMemoryStore()
	for _, u := range cfg.Users {
		err := s.Add(User{
			ID:         u.ID,
			Name:       u.Name,
			Phone:      u.Phone,
			Role:       u.Role,
			Department: u.Department,
		}, u.PasswordHash)
		if err != nil {
			return nil, err
		}
	}
	if cfg.SeedDemoUsers {
		for _, d := range demoUsers {
			if _, _, exists, _ := s.ByPhone(context.Background(), d.user.Phone); exists {
				continue
			}
			if err := s.AddWithPassword(d.user, d.password); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}
