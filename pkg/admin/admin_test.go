package admin_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/msfg/msfg/pkg/admin"
	"github.com/msfg/msfg/pkg/utils/try"
)

func writeUsersFile(t *testing.T, path string, users map[string]string) {
	t.Helper()
	type record struct {
		Name         string `json:"name"`
		PasswordHash string `json:"password_hash"`
	}
	var records []record
	for name, password := range users {
		hash := try.To(bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)).OrFatal(t)
		records = append(records, record{Name: name, PasswordHash: string(hash)})
	}
	content := try.To(json.Marshal(records)).OrFatal(t)
	if err := os.WriteFile(path, content, 0600); err != nil {
		t.Fatal(err)
	}
}

func TestUsers_Verify(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	writeUsersFile(t, path, map[string]string{"op": "hunter2"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	users, err := admin.LoadUsers(ctx, path)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("correct password", func(t *testing.T) {
		if err := users.Verify("op", "hunter2"); err != nil {
			t.Errorf("want nil, but got %v", err)
		}
	})
	t.Run("wrong password", func(t *testing.T) {
		if err := users.Verify("op", "wrong"); !errors.Is(err, admin.ErrBadCredentials) {
			t.Errorf("want ErrBadCredentials, but got %v", err)
		}
	})
	t.Run("unknown user", func(t *testing.T) {
		if err := users.Verify("nobody", "hunter2"); !errors.Is(err, admin.ErrBadCredentials) {
			t.Errorf("want ErrBadCredentials, but got %v", err)
		}
	})
}

func TestUsers_reloadOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	writeUsersFile(t, path, map[string]string{"op": "old-password"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	users, err := admin.LoadUsers(ctx, path)
	if err != nil {
		t.Fatal(err)
	}

	writeUsersFile(t, path, map[string]string{"op": "new-password"})

	deadline := time.Now().Add(3 * time.Second)
	for {
		if users.Verify("op", "new-password") == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("credential file change was not picked up")
		}
		time.Sleep(50 * time.Millisecond)
	}
	if err := users.Verify("op", "old-password"); err == nil {
		t.Error("old password should no longer verify")
	}
}

func TestTokens(t *testing.T) {
	tokens := admin.NewTokens("test-secret", time.Hour)

	t.Run("roundtrip", func(t *testing.T) {
		token := try.To(tokens.Issue("op")).OrFatal(t)
		name, err := tokens.Verify(token)
		if err != nil {
			t.Fatal(err)
		}
		if name != "op" {
			t.Errorf("want op, but got %q", name)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		if _, err := tokens.Verify("not.a.token"); !errors.Is(err, admin.ErrBadToken) {
			t.Errorf("want ErrBadToken, but got %v", err)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := admin.NewTokens("other-secret", time.Hour)
		token := try.To(other.Issue("op")).OrFatal(t)
		if _, err := tokens.Verify(token); !errors.Is(err, admin.ErrBadToken) {
			t.Errorf("want ErrBadToken, but got %v", err)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		short := admin.NewTokens("test-secret", -time.Minute)
		token := try.To(short.Issue("op")).OrFatal(t)
		if _, err := tokens.Verify(token); !errors.Is(err, admin.ErrBadToken) {
			t.Errorf("want ErrBadToken, but got %v", err)
		}
	})
}

func TestAccessLog(t *testing.T) {
	t.Run("keeps insertion order", func(t *testing.T) {
		l := admin.NewAccessLog()
		l.Record("t1", "10.0.0.1", "GET", "/api/count", 200)
		l.Record("t2", "10.0.0.2", "POST", "/api/generate", 202)

		got := l.Snapshot()
		if len(got) != 2 {
			t.Fatalf("want 2 entries, but got %d", len(got))
		}
		if got[0].Path != "/api/count" || got[1].Path != "/api/generate" {
			t.Errorf("unexpected order: %+v", got)
		}
	})

	t.Run("overwrites the oldest when full", func(t *testing.T) {
		l := admin.NewAccessLog()
		for i := 0; i < 250; i++ {
			l.Record(fmt.Sprintf("t%d", i), "10.0.0.1", "GET", fmt.Sprintf("/p/%d", i), 200)
		}

		got := l.Snapshot()
		if len(got) != 200 {
			t.Fatalf("want 200 entries, but got %d", len(got))
		}
		if got[0].Path != "/p/50" {
			t.Errorf("oldest entries should be dropped, got first = %q", got[0].Path)
		}
		if got[len(got)-1].Path != "/p/249" {
			t.Errorf("newest entry should be kept, got last = %q", got[len(got)-1].Path)
		}
	})

	t.Run("csv export", func(t *testing.T) {
		l := admin.NewAccessLog()
		l.Record("t1", "10.0.0.1", "GET", "/api/count", 200)

		buf := new(bytes.Buffer)
		if err := l.WriteCSV(buf); err != nil {
			t.Fatal(err)
		}
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if len(lines) != 2 {
			t.Fatalf("want header + 1 row, but got %d lines", len(lines))
		}
		if lines[0] != "at,remote_ip,method,path,status" {
			t.Errorf("unexpected header: %q", lines[0])
		}
		if lines[1] != "t1,10.0.0.1,GET,/api/count,200" {
			t.Errorf("unexpected row: %q", lines[1])
		}
	})
}
