package filesystem

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	testUid uint32 = 1000
	testGid uint32 = 1000
)

// tickClock advances one second per reading
type tickClock struct {
	mu  sync.Mutex
	cur time.Time
}

func newTickClock() *tickClock {
	return &tickClock{cur: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(time.Second)
	return c.cur
}

func testLimits() Limits {
	return Limits{MaxNodes: 16, MaxChildren: 4, MaxNameLen: 8, MaxFileSize: 64}
}

func newTestStore(limits Limits) *Store {
	return NewStore(limits, WithClock(newTickClock().Now), WithOwner(testUid, testGid))
}

func newTestFS(t *testing.T, limits Limits) *FileSystem {
	t.Helper()
	return NewFSWithLimits(limits, WithClock(newTickClock().Now), WithOwner(testUid, testGid))
}

// populate builds
//
//	/
//	├── docs/
//	│   ├── a.txt  "alpha"
//	│   └── sub/
//	└── b.txt      "bravo!"
func populate(t *testing.T, fs *FileSystem) {
	t.Helper()
	require.NoError(t, fs.Mkdir("/docs"))
	require.NoError(t, fs.Create("/docs/a.txt", 0o600))
	_, err := fs.Write("/docs/a.txt", []byte("alpha"), 0)
	require.NoError(t, err)
	require.NoError(t, fs.Mkdir("/docs/sub"))
	require.NoError(t, fs.Create("/b.txt", 0o600))
	_, err = fs.Write("/b.txt", []byte("bravo!"), 0)
	require.NoError(t, err)
}

type walked struct {
	Path string
	Attr Attr
	Data string
}

// snapshotOf captures every node with its content for comparison
func snapshotOf(t *testing.T, fs *FileSystem) []walked {
	t.Helper()
	var out []walked
	require.NoError(t, fs.Walk(func(p string, a Attr) error {
		out = append(out, walked{Path: p, Attr: a})
		return nil
	}))
	for i := range out {
		if !out[i].Attr.IsDir() {
			fs.mu.Lock()
			ref, err := fs.store.resolve(out[i].Path)
			require.NoError(t, err)
			out[i].Data = string(fs.store.nodes[ref].content)
			fs.mu.Unlock()
		}
	}
	return out
}
