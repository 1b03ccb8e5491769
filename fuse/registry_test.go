package fuse

import (
	"fmt"
	"sync"
	"testing"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Root(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	p, ok := r.Path(fuse.FUSE_ROOT_ID)
	require.True(t, ok)
	assert.Equal(t, "/", p)

	r.Forget(fuse.FUSE_ROOT_ID, 100)
	_, ok = r.Path(fuse.FUSE_ROOT_ID)
	assert.True(t, ok, "root is never released")
}

func TestRegistry_RefIsStable(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	a := r.Ref("/a")
	b := r.Ref("/b")
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, uint64(fuse.FUSE_ROOT_ID), a)
	assert.Equal(t, a, r.Ref("/a"))

	p, ok := r.Path(a)
	require.True(t, ok)
	assert.Equal(t, "/a", p)
}

func TestRegistry_ForgetCountsLookups(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	id := r.Ref("/a")
	r.Ref("/a")
	r.Ref("/a")

	r.Forget(id, 2)
	_, ok := r.Path(id)
	assert.True(t, ok)

	r.Forget(id, 1)
	_, ok = r.Path(id)
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())

	// a fresh lookup gets a new id
	assert.NotEqual(t, id, r.Ref("/a"))
}

func TestRegistry_Remove(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	id := r.Ref("/a")
	r.Remove("/a")
	_, ok := r.Path(id)
	assert.False(t, ok)

	// a new node at the same path does not inherit the stale id
	fresh := r.Ref("/a")
	assert.NotEqual(t, id, fresh)

	// forgetting the stale id leaves the new binding alone
	r.Forget(id, 1)
	p, ok := r.Path(fresh)
	require.True(t, ok)
	assert.Equal(t, "/a", p)
	assert.Equal(t, fresh, r.Ref("/a"))

	r.Remove("/never")
}

func TestRegistry_ForgetUnknown(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	r.Forget(999, 1)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_Concurrent(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	var wg sync.WaitGroup
	ids := make([][]uint64, 8)
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				ids[g] = append(ids[g], r.Ref(fmt.Sprintf("/n%d", i)))
			}
		}()
	}
	wg.Wait()

	for g := 1; g < 8; g++ {
		assert.Equal(t, ids[0], ids[g])
	}
	assert.Equal(t, 51, r.Len())
}
