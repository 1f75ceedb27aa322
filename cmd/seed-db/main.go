package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/loja-api/internal/domain/auth"
	"github.com/xenking/loja-api/internal/domain/coupon"
	"github.com/xenking/loja-api/internal/storage/postgres"
)

type catalogJSON struct {
	Categories []struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	} `json:"categories"`
	Products []struct {
		ID          int64           `json:"id"`
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Price       decimal.Decimal `json:"price"`
		Stock       int             `json:"stock"`
		Category    string          `json:"category"`
		Image       string          `json:"image"`
	} `json:"products"`
}

type seedUser struct {
	name  string
	email string
	role  auth.Role
}

var users = []seedUser{
	{name: "Administrador", email: "admin@loja.dev", role: auth.RoleAdmin},
	{name: "Maria Cliente", email: "maria@loja.dev", role: auth.RoleClient},
	{name: "João Cliente", email: "joao@loja.dev", role: auth.RoleClient},
}

const (
	upsertUserSQL = `
INSERT INTO users (name, email, role) VALUES ($1, $2, $3)
ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name, role = EXCLUDED.role
RETURNING id`

	upsertCategorySQL = `
INSERT INTO categories (name, description) VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description
RETURNING id`

	upsertProductSQL = `
INSERT INTO products (id, name, description, price, stock, category_id, image)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    description = EXCLUDED.description,
    price = EXCLUDED.price,
    stock = EXCLUDED.stock,
    category_id = EXCLUDED.category_id,
    image = EXCLUDED.image,
    updated_at = now()`

	resetProductSeqSQL = `SELECT setval('products_id_seq', GREATEST((SELECT MAX(id) FROM products), 1))`
)

func main() {
	var (
		databaseURL  string
		productsFile string
		jwtSecret    string
		jwtIssuer    string
		tokenTTL     time.Duration
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to catalog JSON file")
	flag.StringVar(&jwtSecret, "jwt-secret", "", "sign development tokens with this secret (or LOJA_AUTH_JWTSECRET env)")
	flag.StringVar(&jwtIssuer, "jwt-issuer", "loja-api", "issuer of development tokens")
	flag.DurationVar(&tokenTTL, "token-ttl", 24*time.Hour, "lifetime of development tokens")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if jwtSecret == "" {
		jwtSecret = os.Getenv("LOJA_AUTH_JWTSECRET")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	ids, err := run(ctx, databaseURL, productsFile)
	if err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if jwtSecret != "" {
		if err := printTokens(auth.NewTokens(jwtSecret, jwtIssuer), ids, tokenTTL); err != nil {
			slog.Error("issue tokens failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile string) (map[string]int64, error) {
	slog.Info("running migrations")

	if err := postgres.RunMigrations(databaseURL); err != nil {
		return nil, errors.Wrap(err, "run migrations")
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	ids, err := seedUsers(ctx, pool)
	if err != nil {
		return nil, errors.Wrap(err, "seed users")
	}

	if err := seedCatalog(ctx, pool, productsFile); err != nil {
		return nil, errors.Wrap(err, "seed catalog")
	}

	if err := seedCoupons(ctx, coupon.NewImporter(postgres.NewCouponRepository(pool))); err != nil {
		return nil, errors.Wrap(err, "seed coupons")
	}

	return ids, nil
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool) (map[string]int64, error) {
	ids := make(map[string]int64, len(users))
	for _, u := range users {
		var id int64
		if err := pool.QueryRow(ctx, upsertUserSQL, u.name, u.email, string(u.role)).Scan(&id); err != nil {
			return nil, errors.Wrapf(err, "upsert user %s", u.email)
		}
		ids[u.email] = id

		slog.Info("upserted user", slog.Int64("id", id), slog.String("email", u.email), slog.String("role", string(u.role)))
	}
	return ids, nil
}

func seedCatalog(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading catalog file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read catalog file")
	}

	var catalog catalogJSON
	if err := json.Unmarshal(data, &catalog); err != nil {
		return errors.Wrap(err, "parse catalog JSON")
	}

	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		categories := make(map[string]int64, len(catalog.Categories))
		for _, c := range catalog.Categories {
			var id int64
			if err := tx.QueryRow(ctx, upsertCategorySQL, c.Name, c.Description).Scan(&id); err != nil {
				return errors.Wrapf(err, "upsert category %s", c.Name)
			}
			categories[c.Name] = id
		}

		slog.Info("upserting products", slog.Int("count", len(catalog.Products)))

		for _, p := range catalog.Products {
			var categoryID *int64
			if id, ok := categories[p.Category]; ok {
				categoryID = &id
			}
			if _, err := tx.Exec(ctx, upsertProductSQL,
				p.ID, p.Name, p.Description, p.Price, p.Stock, categoryID, p.Image,
			); err != nil {
				return errors.Wrapf(err, "upsert product %d", p.ID)
			}

			slog.Info("upserted product", slog.Int64("id", p.ID), slog.String("name", p.Name), slog.Int("stock", p.Stock))
		}

		if _, err := tx.Exec(ctx, resetProductSeqSQL); err != nil {
			return errors.Wrap(err, "reset product sequence")
		}
		return nil
	})
}

func seedCoupons(ctx context.Context, importer *coupon.Importer) error {
	slog.Info("seeding coupons")

	expires := time.Now().AddDate(1, 0, 0).UTC().Truncate(24 * time.Hour)
	defs := []coupon.Definition{
		{
			Code:        "BEMVINDO10",
			Description: "10% de desconto na primeira compra",
			Type:        coupon.TypePercentage,
			Value:       decimal.NewFromInt(10),
			ExpiresAt:   expires,
			MaxUses:     1000,
		},
		{
			Code:        "FRETE15",
			Description: "R$ 15,00 de desconto",
			Type:        coupon.TypeFixedAmount,
			Value:       decimal.NewFromInt(15),
			ExpiresAt:   expires,
			MaxUses:     500,
		},
		{
			Code:        "ULTIMO",
			Description: "Cupom de uso único",
			Type:        coupon.TypePercentage,
			Value:       decimal.NewFromInt(50),
			ExpiresAt:   expires,
			MaxUses:     1,
		},
	}

	for _, d := range defs {
		c, err := importer.Import(ctx, d)
		if err != nil {
			return errors.Wrapf(err, "upsert coupon %s", d.Code)
		}

		slog.Info("upserted coupon", slog.String("code", c.Code), slog.String("description", c.Description))
	}

	return nil
}

// printTokens writes one development bearer token per seeded user to stdout.
func printTokens(tokens *auth.Tokens, ids map[string]int64, ttl time.Duration) error {
	for _, u := range users {
		tok, err := tokens.Issue(auth.Principal{UserID: ids[u.email], Role: u.role}, ttl)
		if err != nil {
			return errors.Wrapf(err, "issue token for %s", u.email)
		}
		fmt.Printf("%s (%s)\n  Authorization: Bearer %s\n", u.email, u.role, tok)
	}
	return nil
}
