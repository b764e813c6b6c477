package database

import (
	"context"
	"fmt"
)

// Migrate creates the tables the service needs if they do not exist yet.
// Statements are idempotent so this is safe to run on every startup.
func (db *DB) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS scrape_jobs (
			id UUID PRIMARY KEY,
			platform TEXT NOT NULL,
			search_query TEXT NOT NULL,
			location TEXT NOT NULL DEFAULT '',
			max_pages INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			progress INTEGER NOT NULL DEFAULT 0,
			pages_scraped INTEGER NOT NULL DEFAULT 0,
			products_found INTEGER NOT NULL DEFAULT 0,
			termination_reason TEXT,
			error TEXT,
			results JSONB,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			started_at TIMESTAMP WITH TIME ZONE,
			completed_at TIMESTAMP WITH TIME ZONE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scrape_jobs_status ON scrape_jobs (status, created_at)`,
		`CREATE TABLE IF NOT EXISTS scraped_products (
			job_id UUID NOT NULL REFERENCES scrape_jobs(id) ON DELETE CASCADE,
			platform TEXT NOT NULL,
			store_id TEXT NOT NULL DEFAULT '',
			product_id TEXT NOT NULL,
			variant_id TEXT NOT NULL DEFAULT '',
			search_query TEXT NOT NULL,
			name TEXT NOT NULL,
			brand TEXT,
			mrp DOUBLE PRECISION,
			price DOUBLE PRECISION NOT NULL,
			quantity TEXT,
			in_stock BOOLEAN NOT NULL DEFAULT TRUE,
			inventory INTEGER,
			max_allowed_quantity INTEGER,
			category TEXT,
			sub_category TEXT,
			images TEXT[],
			organic_rank INTEGER,
			rating DOUBLE PRECISION,
			page INTEGER NOT NULL DEFAULT 0,
			scraped_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			PRIMARY KEY (job_id, platform, store_id, product_id, variant_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scraped_products_query ON scraped_products (platform, search_query)`,
	}

	for _, stmt := range statements {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}

	return nil
}
