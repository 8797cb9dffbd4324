// Package acquire populates a local HGT archive from a remote object store.
//
// A run lists the keys under a prefix, optionally downloads them into a
// staging directory, then verifies and decompresses every staged file into
// the archive. Each key succeeds or fails on its own; a run reports counts
// and never rolls back.
package acquire

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/twpayne/go-hgt"
)

// MaxDownloadWorkers caps the number of concurrent download shards.
const MaxDownloadWorkers = 16

var (
	downloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hgt_acquire_downloads_total",
		Help: "The total number of objects downloaded into staging",
	})
	downloadsSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hgt_acquire_downloads_skipped_total",
		Help: "The total number of objects skipped because they were already staged or archived",
	})
	fetchErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hgt_acquire_fetch_errors_total",
		Help: "The total number of failed object downloads",
	})
	archivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hgt_acquire_archived_total",
		Help: "The total number of tiles decompressed into the archive",
	})
	corruptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hgt_acquire_corrupt_total",
		Help: "The total number of staged files deleted as corrupt",
	})
)

// A Report summarizes a Run.
type Report struct {
	Listed           int      `json:"listed"`
	Downloaded       int      `json:"downloaded"`
	Skipped          int      `json:"skipped"`
	FetchFailed      int      `json:"fetchFailed"`
	Archived         int      `json:"archived"`
	Corrupt          int      `json:"corrupt"`
	ExtractFailed    int      `json:"extractFailed"`
	RemainingFolders []string `json:"remainingFolders,omitempty"`
}

type tally struct {
	downloaded    atomic.Int64
	skipped       atomic.Int64
	fetchFailed   atomic.Int64
	archived      atomic.Int64
	corrupt       atomic.Int64
	extractFailed atomic.Int64
}

// A Pipeline fetches tiles from an ObjectStore into an archive directory.
type Pipeline struct {
	store           ObjectStore
	prefix          string
	stagingDir      string
	archiveDir      string
	downloadWorkers int
	extractWorkers  int
	tileSize        int64
	logger          *slog.Logger
}

// An Option sets an option on a Pipeline.
type Option func(*Pipeline)

// NewPipeline returns a new Pipeline that stages downloads in stagingDir and
// writes tiles to archiveDir.
func NewPipeline(store ObjectStore, stagingDir, archiveDir string, options ...Option) *Pipeline {
	p := &Pipeline{
		store:           store,
		prefix:          DefaultPrefix,
		stagingDir:      stagingDir,
		archiveDir:      archiveDir,
		downloadWorkers: min(runtime.NumCPU(), MaxDownloadWorkers),
		extractWorkers:  runtime.NumCPU(),
		tileSize:        2 * hgt.SRTM1Samples * hgt.SRTM1Samples,
		logger:          slog.Default(),
	}
	for _, option := range options {
		option(p)
	}
	return p
}

func WithPrefix(prefix string) Option {
	return func(p *Pipeline) {
		p.prefix = prefix
	}
}

// WithDownloadWorkers sets the number of download shards. It is capped at
// MaxDownloadWorkers.
func WithDownloadWorkers(workers int) Option {
	return func(p *Pipeline) {
		p.downloadWorkers = max(1, min(workers, MaxDownloadWorkers))
	}
}

func WithExtractWorkers(workers int) Option {
	return func(p *Pipeline) {
		p.extractWorkers = max(1, workers)
	}
}

// WithSamples sets the expected number of samples per tile row. Decompressed
// tiles of any other size are rejected as corrupt. Zero disables the check.
func WithSamples(samples int) Option {
	return func(p *Pipeline) {
		p.tileSize = 2 * int64(samples) * int64(samples)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// Run runs the pipeline. If download is false the listing and download
// phases are skipped and only files already in the staging directory are
// verified and archived. Per-key failures are counted in the report; the
// returned error is non-nil only if the run could not proceed at all.
func (p *Pipeline) Run(ctx context.Context, download bool) (*Report, error) {
	report := &Report{}
	var t tally

	if err := os.MkdirAll(p.archiveDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create archive directory")
	}
	if err := p.removeStaleTemps(ctx); err != nil {
		return nil, err
	}

	if download {
		keys, err := p.store.List(ctx, p.prefix)
		if err != nil {
			return nil, err
		}
		report.Listed = len(keys)
		p.logger.InfoContext(ctx, "downloading", "keys", len(keys), "workers", p.downloadWorkers)
		if err := p.download(ctx, keys, &t); err != nil {
			return nil, err
		}
	}

	p.logger.InfoContext(ctx, "verifying and extracting", "stagingDir", p.stagingDir)
	remaining, err := p.extract(ctx, &t)
	if err != nil {
		return nil, err
	}

	report.Downloaded = int(t.downloaded.Load())
	report.Skipped = int(t.skipped.Load())
	report.FetchFailed = int(t.fetchFailed.Load())
	report.Archived = int(t.archived.Load())
	report.Corrupt = int(t.corrupt.Load())
	report.ExtractFailed = int(t.extractFailed.Load())
	report.RemainingFolders = remaining

	p.logger.InfoContext(ctx, "acquisition done",
		"listed", report.Listed,
		"downloaded", report.Downloaded,
		"skipped", report.Skipped,
		"fetchFailed", report.FetchFailed,
		"archived", report.Archived,
		"corrupt", report.Corrupt,
		"extractFailed", report.ExtractFailed,
		"remainingFolders", len(report.RemainingFolders),
	)
	return report, nil
}
