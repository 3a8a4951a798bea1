package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/kbukum/backplane/capability"
)

// MemoryAuth is an in-memory AuthAdapter issuing HS256 JWTs. Two
// MemoryAuth instances sharing a signing secret remain token-compatible
// across a migration, mirroring how real auth providers share a JWKS.
type MemoryAuth struct {
	AdapterCore

	secret   []byte
	tokenTTL time.Duration

	mu      sync.RWMutex
	users   map[string]authUser
	revoked map[string]struct{}
}

type authUser struct {
	ID       string         `json:"id"`
	Email    string         `json:"email"`
	Hash     []byte         `json:"hash"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewMemoryAuth creates an auth adapter signing tokens with secret.
func NewMemoryAuth(name string, secret []byte) *MemoryAuth {
	a := &MemoryAuth{
		AdapterCore: newCore(name, capability.Auth),
		secret:      secret,
		tokenTTL:    time.Hour,
		users:       make(map[string]authUser),
		revoked:     make(map[string]struct{}),
	}
	a.snapshot = a.items
	a.restore = a.restoreUnit
	a.purge = a.clear
	return a
}

// SignUp implements capability.AuthAdapter.
func (a *MemoryAuth) SignUp(ctx context.Context, creds capability.Credentials) (capability.Session, error) {
	if creds.Email == "" || creds.Password == "" {
		return capability.Session{}, fmt.Errorf("email and password are required")
	}

	// MinCost keeps scripted scenarios fast; strength is not the point here.
	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.MinCost)
	if err != nil {
		return capability.Session{}, err
	}

	a.mu.Lock()
	if _, exists := a.users[creds.Email]; exists {
		a.mu.Unlock()
		return capability.Session{}, fmt.Errorf("user %q already exists", creds.Email)
	}
	user := authUser{ID: uuid.NewString(), Email: creds.Email, Hash: hash, Metadata: creds.Metadata}
	a.users[creds.Email] = user
	a.mu.Unlock()

	return a.issue(user)
}

// SignIn implements capability.AuthAdapter.
func (a *MemoryAuth) SignIn(ctx context.Context, creds capability.Credentials) (capability.Session, error) {
	a.mu.RLock()
	user, ok := a.users[creds.Email]
	a.mu.RUnlock()
	if !ok {
		return capability.Session{}, fmt.Errorf("unknown user %q", creds.Email)
	}
	if err := bcrypt.CompareHashAndPassword(user.Hash, []byte(creds.Password)); err != nil {
		return capability.Session{}, fmt.Errorf("invalid credentials")
	}
	return a.issue(user)
}

// SignOut implements capability.AuthAdapter by revoking the token.
func (a *MemoryAuth) SignOut(ctx context.Context, token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.revoked[token] = struct{}{}
	return nil
}

// Verify implements capability.AuthAdapter.
func (a *MemoryAuth) Verify(ctx context.Context, token string) (capability.Identity, error) {
	a.mu.RLock()
	_, revoked := a.revoked[token]
	a.mu.RUnlock()
	if revoked {
		return capability.Identity{}, fmt.Errorf("token revoked")
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return capability.Identity{}, err
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return capability.Identity{}, fmt.Errorf("invalid token")
	}
	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	return capability.Identity{UserID: sub, Email: email, Claims: claims}, nil
}

func (a *MemoryAuth) issue(user authUser) (capability.Session, error) {
	expires := time.Now().Add(a.tokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"exp":   expires.Unix(),
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return capability.Session{}, err
	}
	return capability.Session{Token: signed, UserID: user.ID, ExpiresAt: expires}, nil
}

func (a *MemoryAuth) items() map[string][]byte {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string][]byte, len(a.users))
	for email, user := range a.users {
		payload, _ := json.Marshal(user)
		out["user/"+email] = payload
	}
	return out
}

func (a *MemoryAuth) restoreUnit(unit capability.Unit) error {
	email, ok := strings.CutPrefix(unit.Key, "user/")
	if !ok {
		return fmt.Errorf("malformed unit key %q", unit.Key)
	}
	var user authUser
	if err := json.Unmarshal(unit.Payload, &user); err != nil {
		return fmt.Errorf("decode unit %q: %w", unit.Key, err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.users[email] = user
	return nil
}

func (a *MemoryAuth) clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.users = make(map[string]authUser)
	a.revoked = make(map[string]struct{})
}
