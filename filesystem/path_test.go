package filesystem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitPath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		path string
		dir  string
		name string
	}{
		{"/a", "/", "a"},
		{"/a/b", "/a", "b"},
		{"/a/b/", "/a", "b"},
		{"//a//b", "//a", "b"},
		{"/a/../b", "/a/..", "b"},
		{"/", "/", "/"},
		{"a", ".", "a"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			dir, name := splitPath(tt.path)
			assert.Equal(t, tt.dir, dir)
			assert.Equal(t, tt.name, name)
		})
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()
	fs := newTestFS(t, testLimits())
	populate(t, fs)
	s := fs.store

	docs, err := s.resolve("/docs")
	require.NoError(t, err)
	a, err := s.resolve("/docs/a.txt")
	require.NoError(t, err)

	tests := []struct {
		name string
		path string
		want Ref
		err  error
	}{
		{"root", "/", s.root, nil},
		{"double slash root", "//", s.root, nil},
		{"dir", "/docs", docs, nil},
		{"trailing slash", "/docs/", docs, nil},
		{"repeated slashes", "//docs///a.txt", a, nil},
		{"missing", "/nope", NoRef, ErrNotFound},
		{"through a file", "/b.txt/x", NoRef, ErrNotFound},
		{"dot dot is a name", "/docs/..", NoRef, ErrNotFound},
		{"relative", "docs", NoRef, ErrNotFound},
		{"empty", "", NoRef, ErrNotFound},
		{"case sensitive", "/DOCS", NoRef, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := s.resolve(tt.path)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ref)
		})
	}
}

func TestIsRootPath(t *testing.T) {
	t.Parallel()
	assert.True(t, isRootPath("/"))
	assert.True(t, isRootPath("///"))
	assert.False(t, isRootPath(""))
	assert.False(t, isRootPath("/a"))
}

func TestChildPath(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "/a", childPath("/", "a"))
	assert.Equal(t, "/a/..", childPath("/a", ".."))
}
