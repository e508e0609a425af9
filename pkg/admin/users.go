// Package admin backs the operator endpoints: credential checking,
// session tokens and the in-memory access log.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/msfg/msfg/pkg/utils/filewatch"
)

var ErrBadCredentials = errors.New("unknown user or wrong password")

type userRecord struct {
	Name         string `json:"name"`
	PasswordHash string `json:"password_hash"`
}

// Users verifies operator credentials against a JSON file of bcrypt
// hashes. The file is re-read whenever it changes on disk.
type Users struct {
	path string

	mu      sync.RWMutex
	records map[string]string
}

// LoadUsers reads the credential file and watches it for changes until
// ctx is done. A missing file yields an empty (deny-all) set.
func LoadUsers(ctx context.Context, path string) (*Users, error) {
	u := &Users{path: path, records: map[string]string{}}
	u.reload()

	if _, err := filewatch.OnModify(ctx, func() { u.reload() }, path); err != nil {
		// watch failures leave the startup snapshot in place.
		return u, nil
	}
	return u, nil
}

func (u *Users) reload() {
	raw, err := os.ReadFile(u.path)
	if err != nil {
		return
	}
	var records []userRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return
	}

	next := make(map[string]string, len(records))
	for _, r := range records {
		if r.Name != "" && r.PasswordHash != "" {
			next[r.Name] = r.PasswordHash
		}
	}

	u.mu.Lock()
	u.records = next
	u.mu.Unlock()
}

// Verify checks name and password. A bcrypt comparison runs even for
// unknown users so timing does not reveal which names exist.
func (u *Users) Verify(name, password string) error {
	u.mu.RLock()
	hash, ok := u.records[name]
	u.mu.RUnlock()

	if !ok {
		bcrypt.CompareHashAndPassword(
			[]byte("$2a$10$0000000000000000000000000000000000000000000000000000"),
			[]byte(password),
		)
		return ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrBadCredentials
	}
	return nil
}
