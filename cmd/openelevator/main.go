package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/cockroachdb/errors"
	"github.com/iancoleman/strcase"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/twpayne/go-hgt"
	"github.com/twpayne/go-hgt/acquire"
	"github.com/twpayne/go-hgt/internal/config"
	"github.com/twpayne/go-hgt/internal/server"
)

const (
	DATADIR       = `data-dir`
	SAMPLES       = `samples`
	TILECACHESIZE = `tile-cache-size`
	LOGFORMAT     = `log-format`
	LOGLEVEL      = `log-level`

	ADDR            = `addr`
	CACHEBACKEND    = `cache-backend`
	REDISURL        = `redis-url`
	CACHEKEYPREFIX  = `cache-key-prefix`
	CACHETTL        = `cache-ttl`
	CACHEMEMORYSIZE = `cache-memory-size`
	CORSORIGINS     = `cors-allowed-origins`
	TRUSTEDPROXIES  = `trusted-proxies`
	RATELIMIT       = `rate-limit`
	RATEBURST       = `rate-burst`
	VIZ             = `viz`
	INTERPOLATION   = `interpolation`

	STAGINGDIR      = `staging-dir`
	BUCKET          = `bucket`
	PREFIX          = `prefix`
	REGION          = `region`
	ENDPOINT        = `endpoint`
	DOWNLOADWORKERS = `download-workers`
	EXTRACTWORKERS  = `extract-workers`
	NODOWNLOAD      = `no-download`
)

const shutdownTimeout = 10 * time.Second

func envVars(name string) []string {
	return []string{strcase.ToScreamingSnake(name)}
}

func main() {
	defaults, err := config.New()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	app := cli.NewApp()
	app.Name = "openelevator"
	app.Usage = "Elevation queries over SRTM HGT tiles"
	app.Version = versioninfo.Short()

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    DATADIR,
			Usage:   "Directory holding the .hgt tile archive",
			Value:   defaults.DataDir,
			EnvVars: envVars(DATADIR),
		},
		&cli.IntFlag{
			Name:    SAMPLES,
			Usage:   "Samples per tile side, 3601 for SRTM1 or 1201 for SRTM3",
			Value:   defaults.Samples,
			EnvVars: envVars(SAMPLES),
		},
		&cli.IntFlag{
			Name:    TILECACHESIZE,
			Usage:   "Number of decoded tiles kept in memory",
			Value:   defaults.TileCacheSize,
			EnvVars: envVars(TILECACHESIZE),
		},
		&cli.StringFlag{
			Name:    LOGFORMAT,
			Usage:   "Log format, text or json",
			Value:   defaults.LogFormat,
			EnvVars: envVars(LOGFORMAT),
		},
		&cli.StringFlag{
			Name:    LOGLEVEL,
			Usage:   "Log level, one of debug, info, warn or error",
			Value:   defaults.LogLevel,
			EnvVars: envVars(LOGLEVEL),
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:  "serve",
			Usage: "Serve elevation queries over HTTP",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    ADDR,
					Usage:   "Listen address",
					Value:   defaults.Server.Addr,
					EnvVars: envVars(ADDR),
				},
				&cli.StringFlag{
					Name:    CACHEBACKEND,
					Usage:   "Query cache backend, one of none, memory or redis",
					Value:   defaults.Cache.Backend,
					EnvVars: envVars(CACHEBACKEND),
				},
				&cli.StringFlag{
					Name:    REDISURL,
					Usage:   "Redis URL for the redis cache backend",
					Value:   defaults.Cache.RedisURL,
					EnvVars: envVars(REDISURL),
				},
				&cli.StringFlag{
					Name:    CACHEKEYPREFIX,
					Usage:   "Prefix for redis cache keys",
					Value:   defaults.Cache.KeyPrefix,
					EnvVars: envVars(CACHEKEYPREFIX),
				},
				&cli.DurationFlag{
					Name:    CACHETTL,
					Usage:   "Expiry of redis cache entries, 0 for none",
					Value:   defaults.Cache.TTL,
					EnvVars: envVars(CACHETTL),
				},
				&cli.IntFlag{
					Name:    CACHEMEMORYSIZE,
					Usage:   "Number of results kept by the memory cache backend",
					Value:   defaults.Cache.MemorySize,
					EnvVars: envVars(CACHEMEMORYSIZE),
				},
				&cli.StringSliceFlag{
					Name:    CORSORIGINS,
					Usage:   "Allowed CORS origins, all if empty",
					EnvVars: envVars(CORSORIGINS),
				},
				&cli.StringSliceFlag{
					Name:    TRUSTEDPROXIES,
					Usage:   "Proxy addresses or CIDRs allowed to set X-Forwarded-For, none if empty",
					EnvVars: envVars(TRUSTEDPROXIES),
				},
				&cli.Float64Flag{
					Name:    RATELIMIT,
					Usage:   "Requests per second allowed per client, 0 to disable",
					Value:   defaults.Server.RateLimit,
					EnvVars: envVars(RATELIMIT),
				},
				&cli.IntFlag{
					Name:    RATEBURST,
					Usage:   "Burst size of the per client rate limiter",
					Value:   defaults.Server.RateBurst,
					EnvVars: envVars(RATEBURST),
				},
				&cli.BoolFlag{
					Name:    VIZ,
					Usage:   "Enable the /v1/elevation/viz endpoint",
					EnvVars: envVars(VIZ),
				},
				&cli.StringFlag{
					Name:    INTERPOLATION,
					Usage:   "Default interpolation method",
					Value:   defaults.Server.DefaultMethod,
					EnvVars: envVars(INTERPOLATION),
				},
			},
			Action: serve,
		},
		{
			Name:  "acquire",
			Usage: "Download and extract tiles into the archive",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    STAGINGDIR,
					Usage:   "Directory for compressed downloads",
					Value:   defaults.Acquire.StagingDir,
					EnvVars: envVars(STAGINGDIR),
				},
				&cli.StringFlag{
					Name:    BUCKET,
					Usage:   "Source bucket",
					Value:   defaults.Acquire.Bucket,
					EnvVars: envVars(BUCKET),
				},
				&cli.StringFlag{
					Name:    PREFIX,
					Usage:   "Key prefix within the bucket",
					Value:   defaults.Acquire.Prefix,
					EnvVars: envVars(PREFIX),
				},
				&cli.StringFlag{
					Name:    REGION,
					Usage:   "Bucket region",
					Value:   defaults.Acquire.Region,
					EnvVars: envVars(REGION),
				},
				&cli.StringFlag{
					Name:    ENDPOINT,
					Usage:   "S3 compatible endpoint, empty for AWS",
					EnvVars: envVars(ENDPOINT),
				},
				&cli.IntFlag{
					Name:    DOWNLOADWORKERS,
					Usage:   "Concurrent downloads, 0 for the number of CPUs",
					EnvVars: envVars(DOWNLOADWORKERS),
				},
				&cli.IntFlag{
					Name:    EXTRACTWORKERS,
					Usage:   "Concurrent extractions, 0 for the number of CPUs",
					EnvVars: envVars(EXTRACTWORKERS),
				},
				&cli.BoolFlag{
					Name:    NODOWNLOAD,
					Usage:   "Only verify and extract what is already staged",
					EnvVars: envVars(NODOWNLOAD),
				},
			},
			Action: acquireTiles,
		},
		{
			Name:      "elevation",
			Usage:     "Print the elevation at a location",
			ArgsUsage: "LAT LON",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  INTERPOLATION,
					Usage: "Interpolation method",
					Value: defaults.Server.DefaultMethod,
				},
			},
			Action: printElevation,
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// loadConfig returns the configuration described by c's flags.
func loadConfig(c *cli.Context) (*config.Config, *slog.Logger, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}
	cfg.DataDir = c.String(DATADIR)
	cfg.Samples = c.Int(SAMPLES)
	cfg.TileCacheSize = c.Int(TILECACHESIZE)
	cfg.LogFormat = c.String(LOGFORMAT)
	cfg.LogLevel = c.String(LOGLEVEL)

	switch c.Command.Name {
	case "serve":
		cfg.Server.Addr = c.String(ADDR)
		cfg.Server.CORSAllowedOrigins = c.StringSlice(CORSORIGINS)
		cfg.Server.TrustedProxies = c.StringSlice(TRUSTEDPROXIES)
		cfg.Server.RateLimit = c.Float64(RATELIMIT)
		cfg.Server.RateBurst = c.Int(RATEBURST)
		cfg.Server.VizEnabled = c.Bool(VIZ)
		cfg.Server.DefaultMethod = c.String(INTERPOLATION)
		cfg.Cache.Backend = c.String(CACHEBACKEND)
		cfg.Cache.RedisURL = c.String(REDISURL)
		cfg.Cache.KeyPrefix = c.String(CACHEKEYPREFIX)
		cfg.Cache.TTL = c.Duration(CACHETTL)
		cfg.Cache.MemorySize = c.Int(CACHEMEMORYSIZE)
	case "acquire":
		cfg.Acquire.StagingDir = c.String(STAGINGDIR)
		cfg.Acquire.Bucket = c.String(BUCKET)
		cfg.Acquire.Prefix = c.String(PREFIX)
		cfg.Acquire.Region = c.String(REGION)
		cfg.Acquire.Endpoint = c.String(ENDPOINT)
		cfg.Acquire.DownloadWorkers = c.Int(DOWNLOADWORKERS)
		cfg.Acquire.ExtractWorkers = c.Int(EXTRACTWORKERS)
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newTileSet(cfg *config.Config) (*hgt.TileSet, error) {
	return hgt.NewSRTM(os.DirFS(cfg.DataDir),
		hgt.WithSamples(cfg.Samples),
		hgt.WithTileCacheSize(cfg.TileCacheSize),
	)
}

// newCache returns the query cache selected by cfg and a function that
// releases it.
func newCache(ctx context.Context, cfg config.CacheConfig) (hgt.Cache, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case config.CacheMemory:
		cache, err := hgt.NewLRUCache(cfg.MemorySize)
		if err != nil {
			return nil, nil, err
		}
		return cache, noop, nil
	case config.CacheRedis:
		options, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, errors.Wrap(err, "redis url")
		}
		client := redis.NewClient(options)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, errors.Wrapf(err, "connect to redis at %s", options.Addr)
		}
		cache := hgt.NewRedisCache(client,
			hgt.WithKeyPrefix(cfg.KeyPrefix),
			hgt.WithTTL(cfg.TTL),
		)
		return cache, client.Close, nil
	default:
		return nil, noop, nil
	}
}

func serve(c *cli.Context) error {
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx := c.Context

	tileSet, err := newTileSet(cfg)
	if err != nil {
		return err
	}
	cache, closeCache, err := newCache(ctx, cfg.Cache)
	if err != nil {
		return err
	}
	defer closeCache()

	service := hgt.NewElevationService(tileSet,
		hgt.WithCache(cache),
		hgt.WithLogger(logger),
	)
	router, err := server.SetupRouter(service, cfg.Server, logger)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("listening",
			"addr", cfg.Server.Addr,
			"data_dir", cfg.DataDir,
			"samples", cfg.Samples,
			"cache", cfg.Cache.Backend,
			"version", versioninfo.Short(),
		)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

func acquireTiles(c *cli.Context) error {
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return err
	}

	storeOptions := []acquire.S3StoreOption{
		acquire.WithRegion(cfg.Acquire.Region),
	}
	if cfg.Acquire.Endpoint != "" {
		storeOptions = append(storeOptions, acquire.WithEndpoint(cfg.Acquire.Endpoint))
	}
	store, err := acquire.NewS3Store(cfg.Acquire.Bucket, storeOptions...)
	if err != nil {
		return err
	}

	pipelineOptions := []acquire.Option{
		acquire.WithPrefix(cfg.Acquire.Prefix),
		acquire.WithSamples(cfg.Samples),
		acquire.WithLogger(logger),
	}
	if cfg.Acquire.DownloadWorkers > 0 {
		pipelineOptions = append(pipelineOptions, acquire.WithDownloadWorkers(cfg.Acquire.DownloadWorkers))
	}
	if cfg.Acquire.ExtractWorkers > 0 {
		pipelineOptions = append(pipelineOptions, acquire.WithExtractWorkers(cfg.Acquire.ExtractWorkers))
	}
	pipeline := acquire.NewPipeline(store,
		filepath.Clean(cfg.Acquire.StagingDir),
		filepath.Clean(cfg.DataDir),
		pipelineOptions...,
	)

	report, err := pipeline.Run(c.Context, !c.Bool(NODOWNLOAD))
	if err != nil {
		return err
	}
	logger.Info("acquisition finished",
		"listed", report.Listed,
		"downloaded", report.Downloaded,
		"skipped", report.Skipped,
		"fetch_failed", report.FetchFailed,
		"archived", report.Archived,
		"corrupt", report.Corrupt,
		"extract_failed", report.ExtractFailed,
	)
	for _, folder := range report.RemainingFolders {
		logger.Warn("staging folder not empty", "folder", folder)
	}
	return nil
}

func printElevation(c *cli.Context) error {
	if c.NArg() != 2 {
		return errors.New("syntax: openelevator elevation [--interpolation=METHOD] -- LAT LON")
	}
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return err
	}
	lat, err := strconv.ParseFloat(c.Args().Get(0), 64)
	if err != nil {
		return err
	}
	lon, err := strconv.ParseFloat(c.Args().Get(1), 64)
	if err != nil {
		return err
	}
	coord, err := hgt.ValidateCoordinate(lat, lon)
	if err != nil {
		return err
	}
	method, err := hgt.ParseMethod(c.String(INTERPOLATION))
	if err != nil {
		return err
	}

	tileSet, err := newTileSet(cfg)
	if err != nil {
		return err
	}
	service := hgt.NewElevationService(tileSet, hgt.WithLogger(logger))
	elevation, err := service.Elevation(c.Context, coord, method)
	if err != nil {
		return err
	}
	fmt.Println(elevation)
	return nil
}
