package testutil

import (
	"context"
	"os"
	"path/filepath"

	"github.com/ndelacroix/linkstash/store"
)

type (
	TestLog interface {
		Fatal(...interface{})
		Log(...interface{})
	}
)

// AcquireStore opens a throwaway sqlite store in a temp dir and returns it
// along with its cleanup function.
func AcquireStore(ctx context.Context, t TestLog) (*store.Store, func()) {
	dir, err := os.MkdirTemp("", "linkstash-tests")
	if err != nil {
		t.Fatal(err)
	}
	st, err := store.Open(ctx, filepath.Join(dir, "linkstash.db"))
	if err != nil {
		t.Fatal(err)
	}
	return st, func() {
		if err := st.Close(); err != nil {
			t.Log("unable to close store", err)
		}
		if err := os.RemoveAll(dir); err != nil {
			t.Log("unable to cleanup temp dir", dir)
		}
	}
}
