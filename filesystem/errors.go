package filesystem

import (
	"errors"
	"fmt"
	"syscall"
)

var (
	// ErrNotFound indicates a path (or its parent) does not resolve
	ErrNotFound = errors.New("no such file or directory")

	// ErrNotDir indicates a directory was required
	ErrNotDir = errors.New("not a directory")

	// ErrIsDir indicates a file was required
	ErrIsDir = errors.New("is a directory")

	// ErrExist indicates a sibling with the same name already exists
	ErrExist = errors.New("file exists")

	// ErrNoSpace indicates the node pool or a directory is full
	ErrNoSpace = errors.New("capacity exceeded")

	// ErrNotEmpty indicates a directory still has children
	ErrNotEmpty = errors.New("directory not empty")

	// ErrRootProtected indicates an attempt to remove the root
	ErrRootProtected = errors.New("root cannot be removed")

	// ErrFileTooLarge indicates an offset or size past the file size bound
	ErrFileTooLarge = errors.New("file too large")

	// ErrInvalid indicates a malformed argument
	ErrInvalid = errors.New("invalid argument")

	// ErrNameTooLong indicates an entry name over the name length bound
	ErrNameTooLong = errors.New("file name too long")

	// ErrIO indicates the tree contradicts its own invariants
	ErrIO = errors.New("input/output error")

	// ErrCorruptSnapshot indicates a snapshot stream that cannot be decoded
	ErrCorruptSnapshot = errors.New("corrupt snapshot")
)

// Error wraps filesystem errors with the operation and affected path.
type Error struct {
	Op   string // Operation that failed (e.g., "mkdir", "write")
	Path string // Affected path
	Err  error  // Underlying error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func opErr(op, path string, err error) error {
	return &Error{Op: op, Path: path, Err: err}
}

// Operation names used in errors and logs
const (
	OpGetattr  = "getattr"
	OpMkdir    = "mkdir"
	OpReadDir  = "readdir"
	OpRmdir    = "rmdir"
	OpCreate   = "create"
	OpRead     = "read"
	OpWrite    = "write"
	OpTruncate = "truncate"
	OpUnlink   = "unlink"
	OpSave     = "save"
	OpLoad     = "load"
)

// Errno maps an error to the errno the kernel bridge should return.
// nil maps to 0 and anything outside the taxonomy maps to EIO.
func Errno(err error) syscall.Errno {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, ErrNotDir):
		return syscall.ENOTDIR
	case errors.Is(err, ErrIsDir):
		return syscall.EISDIR
	case errors.Is(err, ErrExist):
		return syscall.EEXIST
	case errors.Is(err, ErrNoSpace):
		return syscall.ENOMEM
	case errors.Is(err, ErrNotEmpty):
		return syscall.ENOTEMPTY
	case errors.Is(err, ErrRootProtected):
		return syscall.EBUSY
	case errors.Is(err, ErrFileTooLarge):
		return syscall.EFBIG
	case errors.Is(err, ErrInvalid):
		return syscall.EINVAL
	case errors.Is(err, ErrNameTooLong):
		return syscall.ENAMETOOLONG
	default:
		return syscall.EIO
	}
}
