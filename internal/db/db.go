// Package db wires the Postgres and Redis connections both
// cmd/directory-server and cmd/delivery-server bootstrap from, and runs
// the SQL schema migrations (mls_group_members, mls_pending_messages).
// The mls_init_keys and mls_private_keys tables are created by
// keystore.Postgres.EnsureSchema, not by these migrations.
package db

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

type DB struct {
	Postgres *sql.DB
	Redis    *redis.Client
}

// New connects to Postgres (required) and Redis (optional — a
// connection failure there logs a warning and continues with Redis
// nil, degrading cross-instance fan-out to single-process delivery).
func New() (*DB, error) {
	postgresURL := os.Getenv("DATABASE_URL")
	if postgresURL == "" {
		return nil, fmt.Errorf("db: DATABASE_URL environment variable is required")
	}

	pg, err := sql.Open("postgres", postgresURL)
	if err != nil {
		return nil, fmt.Errorf("db: connect to postgres: %w", err)
	}

	pg.SetMaxOpenConns(25)
	pg.SetMaxIdleConns(5)
	pg.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pg.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db: ping postgres: %w", err)
	}
	log.Println("[db] postgres connection established")

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "localhost:6379"
	}

	redisOpts := &redis.Options{
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}

	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		parsedURL, err := url.Parse(redisURL)
		if err != nil {
			log.Printf("[db] failed to parse REDIS_URL: %v (continuing without redis)", err)
		} else {
			redisOpts.Addr = parsedURL.Host
			if parsedURL.User != nil {
				redisOpts.Username = parsedURL.User.Username()
				if password, ok := parsedURL.User.Password(); ok {
					redisOpts.Password = password
				}
			}
			if parsedURL.Scheme == "rediss" {
				redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	} else {
		redisOpts.Addr = redisURL
		redisOpts.Password = os.Getenv("REDIS_PASSWORD")
	}

	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("[db] failed to connect to redis: %v (continuing without redis)", err)
		rdb = nil
	} else {
		log.Println("[db] redis connection established")
	}

	return &DB{Postgres: pg, Redis: rdb}, nil
}

func (d *DB) Close() error {
	var errs []error
	if d.Postgres != nil {
		if err := d.Postgres.Close(); err != nil {
			errs = append(errs, fmt.Errorf("postgres close: %w", err))
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("db: close: %v", errs)
	}
	return nil
}

// RunMigrations executes the *.sql files under migrationsPath in
// lexical order, tracking what has already run in schema_migrations so
// re-running on an already-migrated database is a no-op.
func (d *DB) RunMigrations(migrationsPath string) error {
	log.Println("[db] running migrations...")

	if _, err := d.Postgres.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("db: create migrations table: %w", err)
	}

	files, err := filepath.Glob(filepath.Join(migrationsPath, "*.sql"))
	if err != nil {
		return fmt.Errorf("db: read migration files: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		version := filepath.Base(file)

		var exists bool
		if err := d.Postgres.QueryRow(
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", version,
		).Scan(&exists); err != nil {
			return fmt.Errorf("db: check migration status %s: %w", version, err)
		}
		if exists {
			log.Printf("[db] migration %s already applied, skipping", version)
			continue
		}

		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("db: read migration %s: %w", version, err)
		}

		tx, err := d.Postgres.Begin()
		if err != nil {
			return fmt.Errorf("db: begin migration %s: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("db: execute migration %s: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("db: record migration %s: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("db: commit migration %s: %w", version, err)
		}
		log.Printf("[db] applied migration: %s", version)
	}

	log.Println("[db] all migrations completed")
	return nil
}

func (d *DB) Health(ctx context.Context) error {
	if err := d.Postgres.PingContext(ctx); err != nil {
		return fmt.Errorf("db: postgres health check: %w", err)
	}
	if d.Redis != nil {
		if err := d.Redis.Ping(ctx).Err(); err != nil {
			log.Printf("[db] redis health check failed: %v", err)
		}
	}
	return nil
}
