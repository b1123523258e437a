// Package artifacts manages versioned model bundles: a directory per
// trained model holding the classifier, the fitted preprocessor, metadata
// and evaluation metrics, addressed by "{name}_v{N}" keys.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	// ErrNotFound is returned when a requested artifact version does not exist.
	ErrNotFound = errors.New("artifact not found")
	// ErrInvalidKey is returned for keys that do not match "{name}_v{N}".
	ErrInvalidKey = errors.New("invalid artifact key")
)

// ObjectStore abstracts the artifact backing store. Keys are opaque
// version directories; Upload and Download move whole bundles.
type ObjectStore interface {
	Upload(ctx context.Context, localDir, key string) error
	Download(ctx context.Context, key, localDir string) error
	ListVersions(ctx context.Context, name string) ([]int, error)
}

// VersionKey formats the canonical artifact key for a model version.
func VersionKey(name string, version int) string {
	return fmt.Sprintf("%s_v%d", name, version)
}

// ParseVersionKey splits a "{name}_v{N}" key.
func ParseVersionKey(key string) (name string, version int, err error) {
	i := strings.LastIndex(key, "_v")
	if i <= 0 {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	v, err := strconv.Atoi(key[i+2:])
	if err != nil || v < 1 {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return key[:i], v, nil
}

// NextVersion returns max(existing)+1, or 1 when no versions exist.
// Gaps in the version sequence are preserved, never reused.
func NextVersion(ctx context.Context, store ObjectStore, name string) (int, error) {
	versions, err := store.ListVersions(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("list versions for %s: %w", name, err)
	}
	next := 1
	for _, v := range versions {
		if v >= next {
			next = v + 1
		}
	}
	return next, nil
}

// LatestVersion returns the highest existing version, or ErrNotFound.
func LatestVersion(ctx context.Context, store ObjectStore, name string) (int, error) {
	versions, err := store.ListVersions(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("list versions for %s: %w", name, err)
	}
	if len(versions) == 0 {
		return 0, fmt.Errorf("%w: no versions of %s", ErrNotFound, name)
	}
	latest := versions[0]
	for _, v := range versions[1:] {
		if v > latest {
			latest = v
		}
	}
	return latest, nil
}

// LocalStore keeps bundles as directories under a root path.
type LocalStore struct {
	root   string
	logger *log.Logger
}

// NewLocalStore creates the root directory if needed.
func NewLocalStore(root string, logger *log.Logger) (*LocalStore, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root %s: %w", root, err)
	}
	return &LocalStore{root: root, logger: logger}, nil
}

// Root returns the store's base directory.
func (s *LocalStore) Root() string { return s.root }

// Path returns the directory a key resolves to.
func (s *LocalStore) Path(key string) string { return filepath.Join(s.root, key) }

func (s *LocalStore) Upload(ctx context.Context, localDir, key string) error {
	if _, _, err := ParseVersionKey(key); err != nil {
		return err
	}
	dst := filepath.Join(s.root, key)
	if err := copyDir(ctx, localDir, dst); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	s.logger.Printf("uploaded artifact %s", key)
	return nil
}

func (s *LocalStore) Download(ctx context.Context, key, localDir string) error {
	src := filepath.Join(s.root, key)
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err := copyDir(ctx, src, localDir); err != nil {
		return fmt.Errorf("download %s: %w", key, err)
	}
	return nil
}

func (s *LocalStore) ListVersions(ctx context.Context, name string) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read artifact root: %w", err)
	}
	var versions []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		n, v, err := ParseVersionKey(e.Name())
		if err != nil || n != name {
			continue
		}
		versions = append(versions, v)
	}
	return versions, nil
}

var _ ObjectStore = (*LocalStore)(nil)

func copyDir(ctx context.Context, src, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		from := filepath.Join(src, e.Name())
		to := filepath.Join(dst, e.Name())
		if e.IsDir() {
			if err := copyDir(ctx, from, to); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(from, to); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
