package filesystem

import (
	"errors"
	"fmt"
	"sync"
	"syscall"
	"testing"

	"github.com/brettbedarf/snapfs/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFS_FromConfig(t *testing.T) {
	t.Parallel()
	cfg := config.NewDefaultConfig()
	cfg.MaxNodes = 10

	fs := NewFS(cfg)
	stats := fs.Stats()
	assert.Equal(t, 1, stats.Nodes)
	assert.Equal(t, 10, stats.MaxNodes)
	assert.Equal(t, config.DefaultMaxChildren, stats.MaxChildren)
	assert.Equal(t, config.DefaultMaxNameLen, stats.MaxNameLen)
	assert.Equal(t, config.DefaultMaxFileSize, stats.MaxFileSize)
}

func TestWalk(t *testing.T) {
	t.Parallel()
	fs := newTestFS(t, testLimits())
	populate(t, fs)

	var paths []string
	require.NoError(t, fs.Walk(func(p string, a Attr) error {
		paths = append(paths, p)
		return nil
	}))
	assert.Equal(t, []string{"/", "/docs", "/docs/a.txt", "/docs/sub", "/b.txt"}, paths)

	stop := errors.New("stop")
	var seen int
	err := fs.Walk(func(string, Attr) error {
		seen++
		if seen == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, seen)
}

func TestError_Format(t *testing.T) {
	t.Parallel()
	err := opErr(OpMkdir, "/a", ErrExist)
	assert.Equal(t, "mkdir /a: file exists", err.Error())
	assert.ErrorIs(t, err, ErrExist)

	err = opErr(OpLoad, "", fmt.Errorf("%w: truncated", ErrCorruptSnapshot))
	assert.Equal(t, "load: corrupt snapshot: truncated", err.Error())
}

func TestErrno(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		want syscall.Errno
	}{
		{nil, 0},
		{ErrNotFound, syscall.ENOENT},
		{ErrNotDir, syscall.ENOTDIR},
		{ErrIsDir, syscall.EISDIR},
		{ErrExist, syscall.EEXIST},
		{ErrNoSpace, syscall.ENOMEM},
		{ErrNotEmpty, syscall.ENOTEMPTY},
		{ErrRootProtected, syscall.EBUSY},
		{ErrFileTooLarge, syscall.EFBIG},
		{ErrInvalid, syscall.EINVAL},
		{ErrNameTooLong, syscall.ENAMETOOLONG},
		{ErrIO, syscall.EIO},
		{ErrCorruptSnapshot, syscall.EIO},
		{errors.New("other"), syscall.EIO},
		{opErr(OpRmdir, "/x", ErrNotEmpty), syscall.ENOTEMPTY},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Errno(tt.err), "%v", tt.err)
	}
}

func TestFileSystem_ConcurrentAccess(t *testing.T) {
	t.Parallel()
	limits := Limits{MaxNodes: 64, MaxChildren: 32, MaxNameLen: 16, MaxFileSize: 1024}
	fs := newTestFS(t, limits)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := fmt.Sprintf("/f%d", i)
			if err := fs.Create(p, 0o644); err != nil {
				t.Errorf("create %s: %v", p, err)
				return
			}
			for j := range 20 {
				if _, err := fs.Write(p, []byte{byte(j)}, int64(j)); err != nil {
					t.Errorf("write %s: %v", p, err)
				}
				if _, err := fs.Read(p, 4, 0); err != nil {
					t.Errorf("read %s: %v", p, err)
				}
				_, _ = fs.List("/")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 9, fs.Stats().Nodes)
	for i := range 8 {
		a, err := fs.GetAttr(fmt.Sprintf("/f%d", i))
		require.NoError(t, err)
		assert.Equal(t, int64(20), a.Size)
	}
}
