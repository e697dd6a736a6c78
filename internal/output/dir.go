package output

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Gurpartap/newsagent/news"
)

// Dir writes summary_<date>.<ext> for every configured format. Files are
// written to a temporary name and renamed, so readers never see partial output.
type Dir struct {
	Path    string
	Formats []string
	Logger  *slog.Logger
}

var _ Writer = (*Dir)(nil)

func (d *Dir) Write(ctx context.Context, digest *news.Digest) error {
	_, err := d.WriteFiles(ctx, digest)
	return err
}

// WriteFiles returns the paths written, in format order.
func (d *Dir) WriteFiles(ctx context.Context, digest *news.Digest) ([]string, error) {
	if err := os.MkdirAll(d.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	var paths []string
	seen := make(map[string]struct{}, len(d.Formats))
	for _, format := range d.Formats {
		if _, dup := seen[format]; dup {
			continue
		}
		seen[format] = struct{}{}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return paths, ctxErr
		}
		path := filepath.Join(d.Path, fmt.Sprintf("summary_%s.%s", digest.Date, Extension(format)))
		if err := writeAtomic(path, format, digest); err != nil {
			return paths, fmt.Errorf("write %s: %w", path, err)
		}
		paths = append(paths, path)
		if d.Logger != nil {
			d.Logger.Info("digest written", "path", path, "format", format)
		}
	}
	return paths, nil
}

func writeAtomic(path, format string, digest *news.Digest) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, format, digest); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Stream encodes to a fixed io.Writer, e.g. stdout for `run --format`.
type Stream struct {
	Out    io.Writer
	Format string
}

var _ Writer = (*Stream)(nil)

func (s *Stream) Write(_ context.Context, digest *news.Digest) error {
	return Encode(s.Out, s.Format, digest)
}
