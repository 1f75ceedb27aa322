// Command coupon-import bulk-loads coupon definitions from gzip-compressed
// files into the coupons table.
//
// Every non-empty line not starting with '#' holds one definition:
//
//	CODE;TYPE;VALUE;EXPIRES;MAX_USES[;DESCRIPTION]
//
// EXPIRES is RFC 3339 or YYYY-MM-DD (end of that day, UTC). A code seen
// earlier in the run is skipped, so the first definition wins.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"

	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/loja-api/internal/domain/coupon"
	"github.com/xenking/loja-api/internal/storage/postgres"
)

const progressEvery = 10_000

type options struct {
	dataDir     string
	pattern     string
	databaseURL string
	workers     int
	capacity    uint
	fpr         float64
	dryRun      bool
}

// stats are updated concurrently by readers and writers.
type stats struct {
	lines      atomic.Int64
	duplicates atomic.Int64
	malformed  atomic.Int64
	rejected   atomic.Int64
	imported   atomic.Int64
}

func main() {
	var opts options

	flag.StringVar(&opts.dataDir, "data-dir", "data", "directory containing coupon files")
	flag.StringVar(&opts.pattern, "pattern", "*.gz", "glob selecting coupon files inside data-dir")
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&opts.workers, "workers", 4, "concurrent database writers")
	flag.UintVar(&opts.capacity, "bloom-capacity", 1_000_000, "expected number of distinct codes")
	flag.Float64Var(&opts.fpr, "bloom-fpr", 0.0001, "bloom filter false positive rate")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "parse and deduplicate without writing")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" && !opts.dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("coupon import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon import completed successfully")
}

func run(ctx context.Context, opts options) error {
	files, err := filepath.Glob(filepath.Join(opts.dataDir, opts.pattern))
	if err != nil {
		return errors.Wrap(err, "glob coupon files")
	}
	if len(files) == 0 {
		return errors.Errorf("no files match %s in %s", opts.pattern, opts.dataDir)
	}
	slog.Info("importing coupons", slog.Int("files", len(files)), slog.Bool("dry_run", opts.dryRun))

	var sink func(ctx context.Context, d coupon.Definition) error
	if opts.dryRun {
		sink = func(context.Context, coupon.Definition) error { return nil }
	} else {
		if err := postgres.RunMigrations(opts.databaseURL); err != nil {
			return errors.Wrap(err, "run migrations")
		}
		pool, err := postgres.NewPool(ctx, opts.databaseURL)
		if err != nil {
			return errors.Wrap(err, "connect to database")
		}
		defer pool.Close()

		importer := coupon.NewImporter(postgres.NewCouponRepository(pool))
		sink = func(ctx context.Context, d coupon.Definition) error {
			_, err := importer.Import(ctx, d)
			return err
		}
	}

	var st stats
	if err := importFiles(ctx, files, opts, newDedup(opts.capacity, opts.fpr), sink, &st); err != nil {
		return err
	}

	slog.Info("import summary",
		slog.Int64("lines", st.lines.Load()),
		slog.Int64("imported", st.imported.Load()),
		slog.Int64("duplicates", st.duplicates.Load()),
		slog.Int64("malformed", st.malformed.Load()),
		slog.Int64("rejected", st.rejected.Load()),
	)
	return nil
}

// importFiles reads files concurrently and hands unique definitions to
// opts.workers writers calling sink. Definitions the domain rejects are
// counted and skipped; any other sink error aborts the import.
func importFiles(
	ctx context.Context,
	files []string,
	opts options,
	seen *dedup,
	sink func(ctx context.Context, d coupon.Definition) error,
	st *stats,
) error {
	defs := make(chan coupon.Definition, 1024)

	g, ctx := errgroup.WithContext(ctx)

	readers, rctx := errgroup.WithContext(ctx)
	for _, path := range files {
		readers.Go(func() error {
			return readFile(rctx, path, seen, defs, st)
		})
	}
	g.Go(func() error {
		defer close(defs)
		return readers.Wait()
	})

	for range max(opts.workers, 1) {
		g.Go(func() error {
			for d := range defs {
				err := sink(ctx, d)
				var defErr *coupon.DefinitionError
				switch {
				case errors.As(err, &defErr):
					st.rejected.Add(1)
					slog.Warn("coupon rejected",
						slog.String("code", d.Code),
						slog.String("field", defErr.Field),
						slog.String("reason", defErr.Reason),
					)
				case err != nil:
					return errors.Wrapf(err, "import %s", d.Code)
				default:
					if n := st.imported.Add(1); n%progressEvery == 0 {
						slog.Info("write progress", slog.Int64("imported", n))
					}
				}
			}
			return nil
		})
	}

	return g.Wait()
}

func readFile(ctx context.Context, path string, seen *dedup, out chan<- coupon.Definition, st *stats) error {
	var lineNo int
	err := streamGzFile(ctx, path, func(line string) error {
		lineNo++
		d, ok, err := parseLine(line)
		switch {
		case err != nil:
			st.malformed.Add(1)
			slog.Warn("malformed line",
				slog.String("file", filepath.Base(path)),
				slog.Int("line", lineNo),
				slog.String("error", err.Error()),
			)
			return nil
		case !ok:
			return nil
		}
		st.lines.Add(1)

		if !seen.add(d.Code) {
			st.duplicates.Add(1)
			return nil
		}
		select {
		case out <- d:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}

	slog.Info("file complete", slog.String("file", filepath.Base(path)), slog.Int("lines", lineNo))
	return nil
}
