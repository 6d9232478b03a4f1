// Command seed-db runs migrations and loads books and users from JSON
// fixture files.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/okibook/bookstore/internal/repository"
)

const (
	upsertBookSQL = `INSERT INTO books (id, title, author, price, stock)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			author = EXCLUDED.author,
			price = EXCLUDED.price,
			stock = EXCLUDED.stock`

	upsertUserSQL = `INSERT INTO users (id, name, role, order_count)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			role = EXCLUDED.role,
			order_count = EXCLUDED.order_count`
)

type bookJSON struct {
	ID     string          `json:"id"`
	Title  string          `json:"title"`
	Author string          `json:"author"`
	Price  decimal.Decimal `json:"price"`
	Stock  int             `json:"stock"`
}

type userJSON struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	OrderCount int    `json:"order_count"`
}

func main() {
	var (
		databaseURL string
		booksFile   string
		usersFile   string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&booksFile, "books-file", "db/seed/books.json", "path to books JSON file")
	flag.StringVar(&usersFile, "users-file", "db/seed/users.json", "path to users JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, booksFile, usersFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, booksFile, usersFile string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedBooks(ctx, pool, booksFile); err != nil {
		return errors.Wrap(err, "seed books")
	}

	if err := seedUsers(ctx, pool, usersFile); err != nil {
		return errors.Wrap(err, "seed users")
	}

	return nil
}

func seedBooks(ctx context.Context, pool *pgxpool.Pool, booksFile string) error {
	slog.Info("reading books file", slog.String("path", booksFile))

	data, err := os.ReadFile(booksFile)
	if err != nil {
		return errors.Wrap(err, "read books file")
	}

	var books []bookJSON
	if err := json.Unmarshal(data, &books); err != nil {
		return errors.Wrap(err, "parse books JSON")
	}

	slog.Info("upserting books", slog.Int("count", len(books)))

	for _, b := range books {
		if _, err := pool.Exec(ctx, upsertBookSQL, b.ID, b.Title, b.Author, b.Price, b.Stock); err != nil {
			return errors.Wrapf(err, "upsert book %s", b.ID)
		}

		slog.Info("upserted book", slog.String("id", b.ID), slog.String("title", b.Title))
	}

	return nil
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool, usersFile string) error {
	slog.Info("reading users file", slog.String("path", usersFile))

	data, err := os.ReadFile(usersFile)
	if err != nil {
		return errors.Wrap(err, "read users file")
	}

	var users []userJSON
	if err := json.Unmarshal(data, &users); err != nil {
		return errors.Wrap(err, "parse users JSON")
	}

	slog.Info("upserting users", slog.Int("count", len(users)))

	for _, u := range users {
		if u.Role == "" {
			u.Role = "CUSTOMER"
		}
		if _, err := pool.Exec(ctx, upsertUserSQL, u.ID, u.Name, u.Role, u.OrderCount); err != nil {
			return errors.Wrapf(err, "upsert user %s", u.ID)
		}

		slog.Info("upserted user", slog.String("id", u.ID), slog.String("role", u.Role))
	}

	return nil
}
