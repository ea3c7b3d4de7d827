package engine

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/ravern/doji/scheduler"
)

// Resolver locates a module's source text by name (spec.md §6's "the
// Resolver (locates module source by name)"). Engine.EvaluateFile consults
// it when one is configured; the compiler does not use it.
type Resolver interface {
	Resolve(name string) (string, error)
}

// FileResolver is the default Resolver: it reads "<Root>/<name>.dj" off
// disk, the supplemented file-based module layout (SPEC_FULL.md §4).
type FileResolver struct {
	Root string
}

func NewFileResolver(root string) *FileResolver {
	return &FileResolver{Root: root}
}

func (r *FileResolver) Resolve(name string) (string, error) {
	path := filepath.Join(r.Root, name+".dj")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// noopDriver is the Engine builder's default Driver: it never yields
// progress and rejects every dispatch, matching spec.md §4.6's "default is
// a no-op driver that never yields progress".
type noopDriver struct{}

var errUnsupportedOperation = errors.New("engine: no driver configured, cannot dispatch operation")

func (noopDriver) Dispatch(scheduler.Operation) error { return errUnsupportedOperation }
func (noopDriver) Poll() []scheduler.Response         { return nil }
