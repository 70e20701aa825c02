package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	pingTimeout  = 1 * time.Second
	queryTimeout = 3 * time.Second
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id          BIGSERIAL PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	price       DOUBLE PRECISION NOT NULL,
	category    TEXT NOT NULL DEFAULT '',
	tags        JSONB,
	metadata    JSONB,
	discount    DOUBLE PRECISION,
	image_url   TEXT NOT NULL DEFAULT '',
	featured    BOOLEAN
)`

const productColumns = `id, name, description, price, category, tags, metadata, discount, image_url, featured`

type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects through the pgx database/sql driver.
func OpenPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, schema)
		return err
	})
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return withTimeout(ctx, pingTimeout, func(ctx context.Context) error {
		return s.db.PingContext(ctx)
	})
}

func (s *PostgresStore) List(ctx context.Context) ([]Product, error) {
	var out []Product

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY id ASC`)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]Product, 0, 16)
		for rows.Next() {
			p, err := scanProduct(rows)
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (Product, bool, error) {
	var p Product
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		var err error
		p, err = scanProduct(s.db.QueryRowContext(ctx,
			`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, false, nil
	}
	if err != nil {
		return Product{}, false, err
	}
	return p, true, nil
}

func (s *PostgresStore) Create(ctx context.Context, in ProductInput) (Product, error) {
	p := in.product(0)
	args, err := productArgs(p)
	if err != nil {
		return Product{}, err
	}

	err = withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, `
			INSERT INTO products (name, description, price, category, tags, metadata, discount, image_url, featured)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id
		`, args...).Scan(&p.ID)
	})
	if err != nil {
		return Product{}, err
	}
	return p, nil
}

func (s *PostgresStore) Update(ctx context.Context, id int64, fn func(*Product) error) (Product, bool, error) {
	var (
		p     Product
		found = true
	)

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		p, err = scanProduct(tx.QueryRowContext(ctx,
			`SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, sql.ErrNoRows) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}

		if err := fn(&p); err != nil {
			return err
		}
		p.ID = id

		args, err := productArgs(p)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE products
			SET name = $1, description = $2, price = $3, category = $4, tags = $5,
			    metadata = $6, discount = $7, image_url = $8, featured = $9
			WHERE id = $10
		`, append(args, id)...); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return Product{}, found, err
	}
	if !found {
		return Product{}, false, nil
	}
	return p, true, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id int64) (bool, error) {
	var n int64
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (Product, error) {
	var (
		p              Product
		tags, metadata []byte
		discount       sql.NullFloat64
		featured       sql.NullBool
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Category,
		&tags, &metadata, &discount, &p.ImageURL, &featured); err != nil {
		return Product{}, err
	}

	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &p.Tags); err != nil {
			return Product{}, fmt.Errorf("decode tags of product %d: %w", p.ID, err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
			return Product{}, fmt.Errorf("decode metadata of product %d: %w", p.ID, err)
		}
	}
	if discount.Valid {
		p.Discount = &discount.Float64
	}
	if featured.Valid {
		p.Featured = &featured.Bool
	}
	return p, nil
}

// productArgs returns the column values after id, in productColumns order.
func productArgs(p Product) ([]any, error) {
	tags, err := jsonOrNull(p.Tags, len(p.Tags) == 0)
	if err != nil {
		return nil, err
	}
	metadata, err := jsonOrNull(p.Metadata, len(p.Metadata) == 0)
	if err != nil {
		return nil, err
	}

	var discount sql.NullFloat64
	if p.Discount != nil {
		discount = sql.NullFloat64{Float64: *p.Discount, Valid: true}
	}
	var featured sql.NullBool
	if p.Featured != nil {
		featured = sql.NullBool{Bool: *p.Featured, Valid: true}
	}

	return []any{p.Name, p.Description, p.Price, p.Category, tags, metadata, discount, p.ImageURL, featured}, nil
}

func jsonOrNull(v any, empty bool) (any, error) {
	if empty {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func withTimeout(parent context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()
	return fn(ctx)
}
