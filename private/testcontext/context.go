// Package testcontext provides a context.Context bound to a *testing.T:
// it cancels automatically at the end of the test, collects background
// goroutines started with Go so Cleanup can wait for and report them,
// and hands out a scratch directory removed when the test finishes.
package testcontext

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds how long a test's context stays alive before it
// is cancelled, guarding against a hung test blocking a CI run forever.
const DefaultTimeout = 3 * time.Minute

// Context is a context.Context plus test-scoped helpers.
type Context struct {
	context.Context

	t      *testing.T
	cancel context.CancelFunc
	group  *errgroup.Group
	dir    string
}

// New creates a Context with DefaultTimeout.
func New(t *testing.T) *Context {
	return NewWithTimeout(t, DefaultTimeout)
}

// NewWithTimeout creates a Context that cancels after timeout.
func NewWithTimeout(t *testing.T, timeout time.Duration) *Context {
	return NewWithContextAndTimeout(t, context.Background(), timeout)
}

// NewWithContextAndTimeout creates a Context derived from parent,
// cancelling after timeout.
func NewWithContextAndTimeout(t *testing.T, parent context.Context, timeout time.Duration) *Context {
	ctx, cancel := context.WithTimeout(parent, timeout)
	group, groupCtx := errgroup.WithContext(ctx)
	return &Context{Context: groupCtx, t: t, cancel: cancel, group: group}
}

// Go starts fn in a goroutine tracked by the context; Cleanup fails the
// test if any tracked goroutine returned an error.
func (ctx *Context) Go(fn func() error) {
	ctx.group.Go(fn)
}

// Check registers fn with t.Cleanup, so it runs when the test finishes,
// failing the test if it returns an error. Intended for defer ctx.Check(thing.Close).
func (ctx *Context) Check(fn func() error) {
	ctx.t.Cleanup(func() {
		require.NoError(ctx.t, fn())
	})
}

// Dir returns a fresh subdirectory of the test's scratch directory,
// created on first use via t.TempDir and removed when the test finishes.
func (ctx *Context) Dir(subdir ...string) string {
	if ctx.dir == "" {
		ctx.dir = ctx.t.TempDir()
	}
	path := ctx.dir
	for _, s := range subdir {
		path = path + string(os.PathSeparator) + s
	}
	require.NoError(ctx.t, os.MkdirAll(path, 0o755))
	return path
}

// File returns a path inside the test's scratch directory; it does not
// create the file itself.
func (ctx *Context) File(elem ...string) string {
	dir := ctx.Dir()
	path := dir
	for _, e := range elem {
		path = path + string(os.PathSeparator) + e
	}
	return path
}

// Cleanup waits for every goroutine started with Go, fails the test if
// any returned an error, and cancels the context.
func (ctx *Context) Cleanup() {
	defer ctx.cancel()
	require.NoError(ctx.t, ctx.group.Wait())
}
