// Command catalog-ingest bulk-imports books from gzipped JSONL catalog
// dumps. Dumps from different distributors overlap heavily, so a bloom
// filter tracks already-seen book IDs to skip redundant upserts without
// holding every ID in memory.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/okibook/bookstore/internal/repository"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 100_000
)

const ingestBookSQL = `INSERT INTO books (id, title, author, price, stock)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id) DO NOTHING`

// bookRecord is one line of a catalog dump.
type bookRecord struct {
	ID     string
	Title  string
	Author string
	Price  decimal.Decimal
	Stock  int
}

func main() {
	var databaseURL string

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	files := flag.Args()
	if len(files) == 0 {
		slog.Error("usage: catalog-ingest [flags] dump1.jsonl.gz [dump2.jsonl.gz ...]")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, files); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, databaseURL string, files []string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	ing := &ingester{
		pool: pool,
		seen: bloom.NewWithEstimates(bloomCapacity, bloomFPR),
	}

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(ing.ingestFile(ctx, i, f))
	}
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("ingest summary",
		slog.Uint64("records", ing.total.Load()),
		slog.Uint64("inserted", ing.inserted.Load()),
	)
	return nil
}

type ingester struct {
	pool *pgxpool.Pool

	// seen tracks book IDs already submitted in this run. Bloom false
	// positives only cost a skipped upsert; the ON CONFLICT clause keeps
	// the database correct either way.
	mu   sync.Mutex
	seen *bloom.BloomFilter

	total    atomic.Uint64
	inserted atomic.Uint64
}

// firstSighting records id and reports whether it was new to this run.
func (ing *ingester) firstSighting(id string) bool {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	if ing.seen.TestString(id) {
		return false
	}
	ing.seen.AddString(id)
	return true
}

func (ing *ingester) ingestFile(ctx context.Context, idx int, path string) func() error {
	return func() error {
		var count uint64

		err := streamGzLines(ctx, path, func(line []byte) error {
			rec, err := parseBookRecord(line)
			if err != nil {
				return errors.Wrapf(err, "parse record in %s", path)
			}

			count++
			ing.total.Add(1)
			if count%progressEvery == 0 {
				slog.Info("ingest progress",
					slog.Int("file", idx+1),
					slog.Uint64("records", count),
				)
			}

			if rec.ID == "" || !ing.firstSighting(rec.ID) {
				return nil
			}

			if _, err := ing.pool.Exec(ctx, ingestBookSQL,
				rec.ID, rec.Title, rec.Author, rec.Price, rec.Stock,
			); err != nil {
				return errors.Wrapf(err, "insert book %s", rec.ID)
			}
			ing.inserted.Add(1)
			return nil
		})
		if err != nil {
			return errors.Wrapf(err, "ingest file %d", idx+1)
		}

		slog.Info("file complete", slog.Int("file", idx+1), slog.Uint64("records", count))
		return nil
	}
}

// parseBookRecord decodes one JSONL line.
func parseBookRecord(line []byte) (bookRecord, error) {
	var rec bookRecord
	d := jx.DecodeBytes(line)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			v, err := d.Str()
			rec.ID = v
			return err
		case "title":
			v, err := d.Str()
			rec.Title = v
			return err
		case "author":
			v, err := d.Str()
			rec.Author = v
			return err
		case "price":
			v, err := d.Str()
			if err != nil {
				return err
			}
			price, err := decimal.NewFromString(v)
			rec.Price = price
			return err
		case "stock":
			v, err := d.Int()
			rec.Stock = v
			return err
		default:
			return d.Skip()
		}
	})
	return rec, err
}

// streamGzLines opens a gzip-compressed file and calls fn for each
// non-empty line.
func streamGzLines(ctx context.Context, path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}
