package testserver

import (
	"errors"
	"strconv"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// User is a backend account. Password is plaintext when passed to AddUser
// and is replaced by its bcrypt hash on insert.
type User struct {
	ID        int64
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      string
	TenantID  int64
	Tenants   []int64
}

func (u *User) tenantIDs() []string {
	ids := []string{strconv.FormatInt(u.TenantID, 10)}
	for _, t := range u.Tenants {
		if t != u.TenantID {
			ids = append(ids, strconv.FormatInt(t, 10))
		}
	}
	return ids
}

func (u *User) profile() map[string]any {
	tenants := []int64{u.TenantID}
	for _, t := range u.Tenants {
		if t != u.TenantID {
			tenants = append(tenants, t)
		}
	}
	return map[string]any{
		"id":        u.ID,
		"email":     u.Email,
		"firstName": u.FirstName,
		"lastName":  u.LastName,
		"role":      u.Role,
		"tenantId":  u.TenantID,
		"tenants":   tenants,
	}
}

var errUserNotFound = errors.New("user not found")

type userDirectory struct {
	users    map[int64]*User
	emailIDs map[string]int64
	lock     sync.RWMutex
}

func newUserDirectory() *userDirectory {
	return &userDirectory{
		users:    make(map[int64]*User),
		emailIDs: make(map[string]int64),
	}
}

func (ud *userDirectory) upsert(user User) error {
	hash, err := hashPassword(user.Password)
	if err != nil {
		return err
	}
	user.Password = hash

	ud.lock.Lock()
	defer ud.lock.Unlock()
	ud.users[user.ID] = &user
	ud.emailIDs[user.Email] = user.ID
	return nil
}

func (ud *userDirectory) getByEmail(email string) (*User, error) {
	ud.lock.RLock()
	defer ud.lock.RUnlock()
	id, ok := ud.emailIDs[email]
	if !ok {
		return nil, errUserNotFound
	}
	u := *ud.users[id]
	return &u, nil
}

func (ud *userDirectory) getByID(id int64) (*User, error) {
	ud.lock.RLock()
	defer ud.lock.RUnlock()
	u, ok := ud.users[id]
	if !ok {
		return nil, errUserNotFound
	}
	c := *u
	return &c, nil
}

func (ud *userDirectory) setPassword(id int64, password string) error {
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	ud.lock.Lock()
	defer ud.lock.Unlock()
	u, ok := ud.users[id]
	if !ok {
		return errUserNotFound
	}
	u.Password = hash
	return nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	return string(bytes), err
}

func checkPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
