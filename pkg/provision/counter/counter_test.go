package counter_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/msfg/msfg/pkg/provision/counter"
)

func TestCounter(t *testing.T) {
	ctx := context.Background()

	t.Run("starts at zero", func(t *testing.T) {
		c := counter.New(filepath.Join(t.TempDir(), "count.txt"))
		if got := c.Value(); got != 0 {
			t.Errorf("want 0, but got %d", got)
		}
	})

	t.Run("increments persist", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "count.txt")
		c := counter.New(path)
		if got := c.Increment(ctx); got != 1 {
			t.Errorf("want 1, but got %d", got)
		}
		if got := c.Increment(ctx); got != 2 {
			t.Errorf("want 2, but got %d", got)
		}

		// another instance over the same file sees the count.
		c2 := counter.New(path)
		if got := c2.Value(); got != 2 {
			t.Errorf("want 2, but got %d", got)
		}
	})

	t.Run("resumes from existing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "count.txt")
		if err := os.WriteFile(path, []byte("41\n"), 0644); err != nil {
			t.Fatal(err)
		}
		c := counter.New(path)
		if got := c.Increment(ctx); got != 42 {
			t.Errorf("want 42, but got %d", got)
		}
	})

	t.Run("corrupt file degrades instead of failing", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "count.txt")
		if err := os.WriteFile(path, []byte("not a number"), 0644); err != nil {
			t.Fatal(err)
		}
		c := counter.New(path)
		if got := c.Increment(ctx); got != 1 {
			t.Errorf("want 1, but got %d", got)
		}
	})

	t.Run("concurrent increments do not lose counts", func(t *testing.T) {
		c := counter.New(filepath.Join(t.TempDir(), "count.txt"))

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				c.Increment(ctx)
			}()
		}
		wg.Wait()

		if got := c.Value(); got != 10 {
			t.Errorf("want 10, but got %d", got)
		}
	})
}
