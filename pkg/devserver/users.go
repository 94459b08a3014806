package devserver

import (
	"errors"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/MrCodeEU/faceauth/pkg/recognition"
)

var (
	ErrUserExists   = errors.New("user already exists")
	ErrUserNotFound = errors.New("user not found")
	ErrBadPassword  = errors.New("password mismatch")
)

// User is a registered account.
type User struct {
	Name         string
	Email        string
	PasswordHash []byte
	Descriptors  []recognition.Descriptor
}

// Users is an in-memory account table keyed by normalized email.
type Users struct {
	mu    sync.RWMutex
	users map[string]*User
	cost  int
}

func NewUsers() *Users {
	return &Users{users: make(map[string]*User), cost: bcrypt.DefaultCost}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Add registers a user. The password is stored as a bcrypt hash.
func (u *Users) Add(name, email, password string, descriptors []recognition.Descriptor) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), u.cost)
	if err != nil {
		return err
	}

	key := normalizeEmail(email)
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.users[key]; ok {
		return ErrUserExists
	}
	u.users[key] = &User{
		Name:         name,
		Email:        strings.TrimSpace(email),
		PasswordHash: hash,
		Descriptors:  append([]recognition.Descriptor(nil), descriptors...),
	}
	return nil
}

// Exists reports whether an account exists for email.
func (u *Users) Exists(email string) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	_, ok := u.users[normalizeEmail(email)]
	return ok
}

// Authenticate checks email and password and returns the stored email.
func (u *Users) Authenticate(email, password string) (string, error) {
	u.mu.RLock()
	user, ok := u.users[normalizeEmail(email)]
	u.mu.RUnlock()
	if !ok {
		return "", ErrUserNotFound
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return "", ErrBadPassword
	}
	return user.Email, nil
}

// SetPassword replaces the password of an existing user.
func (u *Users) SetPassword(email, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), u.cost)
	if err != nil {
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	user, ok := u.users[normalizeEmail(email)]
	if !ok {
		return ErrUserNotFound
	}
	user.PasswordHash = hash
	return nil
}

// Match finds the user whose enrolled descriptor is closest to probe within
// tolerance.
func (u *Users) Match(probe recognition.Descriptor, tolerance float64) (string, float64, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	var (
		gallery []recognition.Descriptor
		owners  []string
	)
	for _, user := range u.users {
		for _, d := range user.Descriptors {
			gallery = append(gallery, d)
			owners = append(owners, user.Email)
		}
	}

	idx, dist, ok := recognition.FindBestMatch(probe, gallery, tolerance)
	if !ok {
		return "", dist, false
	}
	return owners[idx], dist, true
}
