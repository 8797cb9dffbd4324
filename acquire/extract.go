package acquire

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/errgroup"
)

var errWrongSize = errors.New("wrong tile size")

// removeStaleTemps deletes extraction temp files left in the archive by an
// interrupted run.
func (p *Pipeline) removeStaleTemps(ctx context.Context) error {
	entries, err := os.ReadDir(p.archiveDir)
	if err != nil {
		return errors.Wrap(err, "read archive directory")
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".tmp") || !strings.Contains(name, ".hgt.") {
			continue
		}
		path := filepath.Join(p.archiveDir, name)
		if err := os.Remove(path); err != nil {
			p.logger.WarnContext(ctx, "cannot remove stale temp file", "path", path, "err", err)
			continue
		}
		p.logger.InfoContext(ctx, "removed stale temp file", "path", path)
	}
	return nil
}

// extract verifies and decompresses every staging subfolder in parallel,
// then removes the subfolders that are empty. It returns the subfolders
// that were left in place.
func (p *Pipeline) extract(ctx context.Context, t *tally) ([]string, error) {
	entries, err := os.ReadDir(p.stagingDir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		p.logger.WarnContext(ctx, "no staging directory", "stagingDir", p.stagingDir)
		return nil, nil
	case err != nil:
		return nil, errors.Wrap(err, "read staging directory")
	}

	var folders []string
	for _, entry := range entries {
		if entry.IsDir() {
			folders = append(folders, filepath.Join(p.stagingDir, entry.Name()))
		}
	}

	var g errgroup.Group
	g.SetLimit(p.extractWorkers)
	for _, folder := range folders {
		folder := folder
		g.Go(func() error {
			p.extractFolder(ctx, folder, t)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var remaining []string
	for _, folder := range folders {
		if err := os.Remove(folder); err != nil {
			p.logger.WarnContext(ctx, "staging folder not empty, not deleted", "folder", folder)
			remaining = append(remaining, folder)
		}
	}
	sort.Strings(remaining)
	return remaining, nil
}

// extractFolder handles the files of one staging folder. Names containing
// ".gz." are leftovers of interrupted downloads and are deleted. Other ".gz"
// files are decompressed into the archive and removed. Anything else is
// left alone.
func (p *Pipeline) extractFolder(ctx context.Context, folder string, t *tally) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		p.logger.WarnContext(ctx, "read staging folder failed", "folder", folder, "err", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		stagedPath := filepath.Join(folder, name)
		switch {
		case strings.Contains(name, ".gz."):
			p.deleteCorrupt(ctx, stagedPath, errors.New("partial download"), t)
		case strings.HasSuffix(name, ".gz"):
			archivePath := filepath.Join(p.archiveDir, strings.TrimSuffix(name, ".gz"))
			switch err := p.extractFile(stagedPath, archivePath); {
			case isCorrupt(err):
				p.deleteCorrupt(ctx, stagedPath, err, t)
			case err != nil:
				t.extractFailed.Add(1)
				p.logger.WarnContext(ctx, "extract failed", "path", stagedPath, "err", err)
			default:
				if err := os.Remove(stagedPath); err != nil {
					p.logger.WarnContext(ctx, "remove staged file failed", "path", stagedPath, "err", err)
				}
				t.archived.Add(1)
				archivedTotal.Inc()
			}
		}
	}
}

func (p *Pipeline) deleteCorrupt(ctx context.Context, stagedPath string, reason error, t *tally) {
	t.corrupt.Add(1)
	corruptTotal.Inc()
	p.logger.WarnContext(ctx, "deleting corrupt staged file", "path", stagedPath, "reason", reason)
	if err := os.Remove(stagedPath); err != nil {
		p.logger.WarnContext(ctx, "remove corrupt file failed", "path", stagedPath, "err", err)
	}
}

// extractFile decompresses stagedPath to archivePath. The tile is written to
// a temporary file in the archive directory and renamed only once it is
// complete and its checksum and size are verified.
func (p *Pipeline) extractFile(stagedPath, archivePath string) (err error) {
	in, err := os.Open(stagedPath)
	if err != nil {
		return err
	}
	defer in.Close()

	zr, err := gzip.NewReader(in)
	if err != nil {
		return err
	}
	defer zr.Close()

	tmp, err := os.CreateTemp(filepath.Dir(archivePath), filepath.Base(archivePath)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	n, err := io.Copy(tmp, zr)
	if err != nil {
		return err
	}
	if p.tileSize > 0 && n != p.tileSize {
		return errors.Wrapf(errWrongSize, "%s: got %d bytes, expected %d", stagedPath, n, p.tileSize)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), archivePath)
}

func isCorrupt(err error) bool {
	var corruptInputError flate.CorruptInputError
	switch {
	case err == nil:
		return false
	case errors.Is(err, gzip.ErrHeader),
		errors.Is(err, gzip.ErrChecksum),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF),
		errors.Is(err, errWrongSize),
		errors.As(err, &corruptInputError):
		return true
	default:
		return false
	}
}
