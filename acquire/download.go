package acquire

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

// shards splits keys into at most n contiguous shards whose sizes differ by
// at most one. Empty shards are omitted.
func shards(keys []string, n int) [][]string {
	if n < 1 {
		n = 1
	}
	result := make([][]string, 0, n)
	for i := 0; i < n; i++ {
		shard := keys[i*len(keys)/n : (i+1)*len(keys)/n]
		if len(shard) > 0 {
			result = append(result, shard)
		}
	}
	return result
}

// stagingPath returns the staging path for key, mirroring its path below the
// prefix.
func (p *Pipeline) stagingPath(key string) (string, bool) {
	rel := strings.TrimPrefix(strings.TrimPrefix(key, p.prefix), "/")
	if rel == "" || strings.HasSuffix(rel, "/") || !filepath.IsLocal(filepath.FromSlash(rel)) {
		return "", false
	}
	return filepath.Join(p.stagingDir, filepath.FromSlash(rel)), true
}

// archivePath returns the archive path of the tile that key decompresses to.
func (p *Pipeline) archivePath(key string) string {
	return filepath.Join(p.archiveDir, strings.TrimSuffix(path.Base(key), ".gz"))
}

func (p *Pipeline) download(ctx context.Context, keys []string, t *tally) error {
	if err := os.MkdirAll(p.stagingDir, 0o755); err != nil {
		return errors.Wrap(err, "create staging directory")
	}
	var g errgroup.Group
	for i, shard := range shards(keys, p.downloadWorkers) {
		i, shard := i, shard
		g.Go(func() error {
			p.downloadShard(ctx, i, shard, t)
			return nil
		})
	}
	return g.Wait()
}

// downloadShard downloads keys sequentially. Failures are logged and
// counted so that one bad key never stops the shard or its siblings.
func (p *Pipeline) downloadShard(ctx context.Context, shard int, keys []string, t *tally) {
	logger := p.logger.With("shard", shard)
	for i, key := range keys {
		if ctx.Err() != nil {
			logger.WarnContext(ctx, "download interrupted", "remaining", len(keys)-i, "err", ctx.Err())
			return
		}
		localPath, ok := p.stagingPath(key)
		if !ok {
			logger.DebugContext(ctx, "ignoring key", "key", key)
			continue
		}
		if exists(localPath) || exists(p.archivePath(key)) {
			t.skipped.Add(1)
			downloadsSkippedTotal.Inc()
			continue
		}
		if err := p.fetch(ctx, key, localPath); err != nil {
			t.fetchFailed.Add(1)
			fetchErrorsTotal.Inc()
			logger.WarnContext(ctx, "download failed", "key", key, "err", err)
			continue
		}
		t.downloaded.Add(1)
		downloadsTotal.Inc()
		logger.DebugContext(ctx, "downloaded", "key", key, "done", i+1, "of", len(keys))
	}
}

// fetch downloads key to a temporary file next to localPath and renames it
// into place on success. An interrupted fetch leaves a file whose name
// contains ".gz." which the extract phase deletes.
func (p *Pipeline) fetch(ctx context.Context, key, localPath string) (err error) {
	dir := filepath.Dir(localPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(localPath)+".*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := p.store.Fetch(ctx, key, tmp); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), localPath)
}

func exists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}
