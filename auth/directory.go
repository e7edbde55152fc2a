package auth

import (
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/Keksclan/goRawrGate/security"
)

// User is an account known to the gateway.
type User struct {
	ID           string
	Username     string
	PasswordHash []byte
	Roles        security.RoleSet
}

// HashPassword returns a bcrypt hash of pw.
func HashPassword(pw string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
}

// Directory is a fixed set of users checked with bcrypt.
type Directory struct {
	users map[string]User
}

// NewDirectory indexes users by username.
func NewDirectory(users ...User) *Directory {
	d := &Directory{users: make(map[string]User, len(users))}
	for _, u := range users {
		d.users[u.Username] = u
	}
	return d
}

var (
	dummyOnce sync.Once
	dummyHash []byte
)

// Verify returns the user when password matches. Unknown users cost the
// same bcrypt comparison as known ones.
func (d *Directory) Verify(username, password string) (User, error) {
	u, ok := d.users[username]
	hash := u.PasswordHash
	if !ok {
		dummyOnce.Do(func() {
			dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-password"), bcrypt.DefaultCost)
		})
		hash = dummyHash
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil || !ok {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

// Len returns the number of users.
func (d *Directory) Len() int { return len(d.users) }

// DemoUsers returns the two stock accounts: alice (user) and bob (user and
// admin), with passwords "alicepass" and "bobpass".
func DemoUsers() ([]User, error) {
	seed := []struct {
		id, name, pw string
		roles        security.RoleSet
	}{
		{"1", "alice", "alicepass", security.Roles(security.RoleUser)},
		{"2", "bob", "bobpass", security.Roles(security.RoleUser, security.RoleAdmin)},
	}
	users := make([]User, 0, len(seed))
	for _, s := range seed {
		h, err := HashPassword(s.pw)
		if err != nil {
			return nil, fmt.Errorf("auth: hash %s: %w", s.name, err)
		}
		users = append(users, User{ID: s.id, Username: s.name, PasswordHash: h, Roles: s.roles})
	}
	return users, nil
}
