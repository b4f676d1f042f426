package replicate

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nogproject/luks-header-backup/backend/internal/lukshdr"
	"github.com/nogproject/luks-header-backup/backend/pkg/ratelimit"
	"go.uber.org/multierr"
)

// `copyLocal()` copies every artifact file into `dir`.  It attempts all
// files even if some fail and returns the combined errors.
func (r *Replicator) copyLocal(
	ctx context.Context, arts []*lukshdr.Artifact, dir string,
) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	var errs error
	for _, a := range arts {
		ok := true
		for _, src := range a.Files() {
			if err := ctx.Err(); err != nil {
				return multierr.Append(errs, err)
			}
			dst := filepath.Join(dir, filepath.Base(src))
			if err := r.copyFileAtomic(src, dst); err != nil {
				ok = false
				r.Lg.Errorw(
					"Failed to copy artifact file.",
					"src", src,
					"dest", dst,
					"err", err,
				)
				errs = multierr.Append(errs, err)
			}
		}
		if ok {
			r.Lg.Infow(
				"Saved backup.",
				"uuid", a.UUID,
				"dest", filepath.Join(dir, filepath.Base(a.HeaderPath)),
			)
		}
	}
	return errs
}

// `copyFileAtomic()` writes `src` to a private temp file next to `dst` and
// renames it to `dst` after the data has been synced.  Readers of the
// directory never see a partial file under the name `dst`.
func (r *Replicator) copyFileAtomic(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	dir, name := filepath.Split(dst)
	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmp, ratelimit.NewReader(in, r.Limit)); err != nil {
		return fmt.Errorf("failed to copy `%s`: %w", src, err)
	}
	if err := tmp.Chmod(lukshdr.FileMode); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, dst)
}
