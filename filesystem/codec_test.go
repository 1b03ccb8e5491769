package filesystem

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func saveBytes(t *testing.T, fs *FileSystem) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, fs.Save(&buf))
	return buf.Bytes()
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	t.Parallel()
	src := newTestFS(t, testLimits())
	populate(t, src)
	// sparse content survives
	_, err := src.Write("/docs/a.txt", []byte("Z"), 20)
	require.NoError(t, err)

	dst := newTestFS(t, testLimits())
	require.NoError(t, dst.Load(bytes.NewReader(saveBytes(t, src))))

	assert.Equal(t, snapshotOf(t, src), snapshotOf(t, dst))
	assert.Equal(t, src.Stats(), dst.Stats())
}

func TestSave_Idempotent(t *testing.T) {
	t.Parallel()
	fs := newTestFS(t, testLimits())
	populate(t, fs)

	first := saveBytes(t, fs)
	second := saveBytes(t, fs)
	assert.Equal(t, first, second)

	// load then save reproduces the same bytes
	other := newTestFS(t, testLimits())
	require.NoError(t, other.Load(bytes.NewReader(first)))
	assert.Equal(t, first, saveBytes(t, other))
}

func TestSave_Layout(t *testing.T) {
	t.Parallel()
	limits := testLimits()
	fs := newTestFS(t, limits)
	require.NoError(t, fs.Create("/f", 0o644))
	_, err := fs.Write("/f", []byte("hi"), 0)
	require.NoError(t, err)

	data := saveBytes(t, fs)
	record := RecordSize(limits)
	require.Len(t, data, HeaderSize+2*record+2)

	var hdr snapshotHeader
	require.NoError(t, binary.Read(bytes.NewReader(data), binary.LittleEndian, &hdr))
	assert.Equal(t, uint32(2), hdr.NodeCount)
	assert.Equal(t, uint64(2*record+2), hdr.PayloadSize)

	payload := data[HeaderSize:]
	assert.Equal(t, "/", string(bytes.TrimRight(payload[:limits.MaxNameLen], "\x00")))
	assert.Equal(t, byte(DirKind), payload[limits.MaxNameLen])
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(payload[limits.MaxNameLen+1:]))

	file := payload[record:]
	assert.Equal(t, "f", string(bytes.TrimRight(file[:limits.MaxNameLen], "\x00")))
	assert.Equal(t, byte(FileKind), file[limits.MaxNameLen])
	assert.Equal(t, "hi", string(file[record:]))
}

func TestSave_Preorder(t *testing.T) {
	t.Parallel()
	fs := newTestFS(t, testLimits())
	populate(t, fs)

	var names []string
	data := saveBytes(t, fs)
	rd := bytes.NewReader(data[HeaderSize:])
	for rd.Len() > 0 {
		name := make([]byte, testLimits().MaxNameLen)
		_, err := io.ReadFull(rd, name)
		require.NoError(t, err)
		var rec recordFields
		require.NoError(t, binary.Read(rd, binary.LittleEndian, &rec))
		if Kind(rec.Kind) == FileKind {
			_, err = rd.Seek(rec.Size, io.SeekCurrent)
			require.NoError(t, err)
		}
		names = append(names, string(bytes.TrimRight(name, "\x00")))
	}
	assert.Equal(t, []string{"/", "docs", "a.txt", "sub", "b.txt"}, names)
}

func TestLoad_ReplacesTree(t *testing.T) {
	t.Parallel()
	src := newTestFS(t, testLimits())
	require.NoError(t, src.Mkdir("/only"))

	dst := newTestFS(t, testLimits())
	populate(t, dst)
	require.NoError(t, dst.Load(bytes.NewReader(saveBytes(t, src))))

	entries, err := dst.List("/")
	require.NoError(t, err)
	assert.Equal(t, []DirEntry{{Name: "only", Kind: DirKind}}, entries)
	assert.Equal(t, 2, dst.Stats().Nodes)

	// the loaded tree is fully usable
	require.NoError(t, dst.Mkdir("/only/x"))
	require.NoError(t, dst.Rmdir("/only/x"))
	require.NoError(t, dst.Rmdir("/only"))
	assert.Equal(t, 1, dst.Stats().Nodes)
}

func TestLoad_EmptyTree(t *testing.T) {
	t.Parallel()
	src := newTestFS(t, testLimits())
	dst := newTestFS(t, testLimits())
	populate(t, dst)

	require.NoError(t, dst.Load(bytes.NewReader(saveBytes(t, src))))
	entries, err := dst.List("/")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// tamper decodes a valid snapshot header and lets fn rewrite the bytes
func tamper(data []byte, fn func(hdr *snapshotHeader, payload []byte) []byte) []byte {
	var hdr snapshotHeader
	_ = binary.Read(bytes.NewReader(data), binary.LittleEndian, &hdr)
	payload := fn(&hdr, append([]byte(nil), data[HeaderSize:]...))
	var out bytes.Buffer
	_ = binary.Write(&out, binary.LittleEndian, &hdr)
	out.Write(payload)
	return out.Bytes()
}

func TestLoad_RejectsCorrupt(t *testing.T) {
	t.Parallel()
	limits := testLimits()
	record := RecordSize(limits)

	src := newTestFS(t, limits)
	require.NoError(t, src.Mkdir("/d"))
	require.NoError(t, src.Create("/d/f", 0o644))
	_, err := src.Write("/d/f", []byte("data"), 0)
	require.NoError(t, err)
	valid := saveBytes(t, src)

	// offsets into the payload
	rootKind := limits.MaxNameLen
	rootChildCount := limits.MaxNameLen + 1
	dirName := record
	dirSize := 2*record - 8
	fileKind := 2*record + limits.MaxNameLen
	fileSize := 2*record + record - 8

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short header", valid[:HeaderSize-1]},
		{"truncated payload", valid[:len(valid)-1]},
		{"trailing bytes", append(append([]byte(nil), valid...), 0)},
		{"oversized payload", tamper(valid, func(h *snapshotHeader, p []byte) []byte {
			h.PayloadSize = MaxPayloadSize(limits) + 1
			return p
		})},
		{"zero nodes", tamper(valid, func(h *snapshotHeader, p []byte) []byte {
			h.NodeCount = 0
			return p
		})},
		{"node count mismatch", tamper(valid, func(h *snapshotHeader, p []byte) []byte {
			h.NodeCount = 2
			return p
		})},
		{"unknown kind", tamper(valid, func(_ *snapshotHeader, p []byte) []byte {
			p[fileKind] = 7
			return p
		})},
		{"root is a file", tamper(valid, func(_ *snapshotHeader, p []byte) []byte {
			p[rootKind] = byte(FileKind)
			return p
		})},
		{"too many children", tamper(valid, func(_ *snapshotHeader, p []byte) []byte {
			binary.LittleEndian.PutUint32(p[rootChildCount:], uint32(limits.MaxChildren+1))
			return p
		})},
		{"child count past end", tamper(valid, func(_ *snapshotHeader, p []byte) []byte {
			binary.LittleEndian.PutUint32(p[rootChildCount:], 2)
			return p
		})},
		{"empty name", tamper(valid, func(_ *snapshotHeader, p []byte) []byte {
			p[dirName] = 0
			return p
		})},
		{"slash in name", tamper(valid, func(_ *snapshotHeader, p []byte) []byte {
			p[dirName] = '/'
			return p
		})},
		{"file size over bound", tamper(valid, func(_ *snapshotHeader, p []byte) []byte {
			binary.LittleEndian.PutUint64(p[fileSize:], uint64(limits.MaxFileSize+1))
			return p
		})},
		{"negative file size", tamper(valid, func(_ *snapshotHeader, p []byte) []byte {
			binary.LittleEndian.PutUint64(p[fileSize:], ^uint64(0))
			return p
		})},
		{"directory with size", tamper(valid, func(_ *snapshotHeader, p []byte) []byte {
			binary.LittleEndian.PutUint64(p[dirSize:], 4)
			return p
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dst := newTestFS(t, limits)
			populate(t, dst)
			before := snapshotOf(t, dst)

			err := dst.Load(bytes.NewReader(tt.data))
			assert.ErrorIs(t, err, ErrCorruptSnapshot)

			// the previous tree is untouched
			assert.Equal(t, before, snapshotOf(t, dst))
			assert.Equal(t, 5, dst.Stats().Nodes)
		})
	}
}

func TestLoad_RejectsDuplicateSiblings(t *testing.T) {
	t.Parallel()
	src := newTestFS(t, testLimits())
	require.NoError(t, src.Mkdir("/aa"))
	require.NoError(t, src.Mkdir("/bb"))
	data := saveBytes(t, src)

	// rename the second entry to match the first
	second := HeaderSize + 2*RecordSize(testLimits())
	copy(data[second:], "aa")

	dst := newTestFS(t, testLimits())
	assert.ErrorIs(t, dst.Load(bytes.NewReader(data)), ErrCorruptSnapshot)
	assert.Equal(t, 1, dst.Stats().Nodes)
}

func TestLoad_RejectsOverCapacity(t *testing.T) {
	t.Parallel()
	big := testLimits()
	big.MaxNodes = 32
	src := newTestFS(t, big)
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, src.Mkdir("/"+name))
	}

	small := testLimits()
	small.MaxNodes = 3
	dst := newTestFS(t, small)
	err := dst.Load(bytes.NewReader(saveBytes(t, src)))
	assert.ErrorIs(t, err, ErrCorruptSnapshot)
	assert.Equal(t, 1, dst.Stats().Nodes)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestLoad_ReaderError(t *testing.T) {
	t.Parallel()
	fs := newTestFS(t, testLimits())

	err := fs.Load(failingReader{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCorruptSnapshot)
	assert.True(t, strings.Contains(err.Error(), "disk gone"))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestSave_WriterError(t *testing.T) {
	t.Parallel()
	fs := newTestFS(t, testLimits())

	err := fs.Save(failingWriter{})
	require.Error(t, err)
	var fsErr *Error
	require.ErrorAs(t, err, &fsErr)
	assert.Equal(t, OpSave, fsErr.Op)
}

func TestMaxPayloadSize(t *testing.T) {
	t.Parallel()
	limits := Limits{MaxNodes: 2, MaxChildren: 1, MaxNameLen: 4, MaxFileSize: 10}
	assert.Equal(t, 4+49, RecordSize(limits))
	assert.Equal(t, uint64(2*(53+10)), MaxPayloadSize(limits))
}
