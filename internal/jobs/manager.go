package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/database"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/models"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/pipeline"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/scraper"
)

// SeenStore is the cross-job dedup set. Identities persisted by one job
// are skipped by later ones; nil disables the behavior.
type SeenStore interface {
	Seen(ctx context.Context, identity string) (bool, error)
	MarkAll(ctx context.Context, identities []string) error
}

type Manager struct {
	db      *database.DB
	scraper *scraper.Service
	seen    SeenStore
	logger  *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func NewManager(db *database.DB, scraper *scraper.Service, seen SeenStore, logger *slog.Logger) *Manager {
	return &Manager{
		db:      db,
		scraper: scraper,
		seen:    seen,
		logger:  logger.With("component", "job_manager"),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Job represents one queued scrape run.
type Job struct {
	ID                string     `json:"id"`
	Platform          string     `json:"platform"`
	SearchQuery       string     `json:"search_query"`
	Location          string     `json:"location"`
	MaxPages          int        `json:"max_pages"`
	Status            string     `json:"status"`
	Progress          int        `json:"progress"`
	PagesScraped      int        `json:"pages_scraped"`
	ProductsFound     int        `json:"products_found"`
	TerminationReason *string    `json:"termination_reason,omitempty"`
	Error             *string    `json:"error,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// Stats represents aggregate job and product counts.
type Stats struct {
	TotalJobs     int     `json:"total_jobs"`
	PendingJobs   int     `json:"pending_jobs"`
	RunningJobs   int     `json:"running_jobs"`
	CompletedJobs int     `json:"completed_jobs"`
	FailedJobs    int     `json:"failed_jobs"`
	CancelledJobs int     `json:"cancelled_jobs"`
	TotalProducts int     `json:"total_products"`
	SuccessRate   float64 `json:"success_rate"`
}

// CreateJob queues a new scrape job.
func (m *Manager) CreateJob(ctx context.Context, platform, searchQuery, location string, maxPages int) (*Job, error) {
	if !m.scraper.Supported(platform) {
		return nil, fmt.Errorf("%w: %s", scraper.ErrUnknownPlatform, platform)
	}

	job := &Job{
		ID:          uuid.New().String(),
		Platform:    platform,
		SearchQuery: searchQuery,
		Location:    location,
		MaxPages:    m.scraper.ClampPages(maxPages),
		Status:      StatusPending,
		CreatedAt:   time.Now(),
	}

	query := `
		INSERT INTO scrape_jobs
		(id, platform, search_query, location, max_pages, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := m.db.Exec(ctx, query,
		job.ID, job.Platform, job.SearchQuery, job.Location, job.MaxPages, job.Status, job.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	m.logger.Info("job created", "id", job.ID, "platform", platform, "query", searchQuery)
	return job, nil
}

// GetJob retrieves a job by ID.
func (m *Manager) GetJob(ctx context.Context, jobID string) (*Job, error) {
	query := `
		SELECT id, platform, search_query, location, max_pages, status,
		       progress, pages_scraped, products_found, termination_reason,
		       error, created_at, started_at, completed_at
		FROM scrape_jobs
		WHERE id = $1
	`

	job := &Job{}
	err := m.db.QueryRow(ctx, query, jobID).Scan(
		&job.ID, &job.Platform, &job.SearchQuery, &job.Location, &job.MaxPages, &job.Status,
		&job.Progress, &job.PagesScraped, &job.ProductsFound, &job.TerminationReason,
		&job.Error, &job.CreatedAt, &job.StartedAt, &job.CompletedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("job not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

// ListJobs lists recent jobs, newest first.
func (m *Manager) ListJobs(ctx context.Context) ([]*Job, error) {
	query := `
		SELECT id, platform, search_query, location, max_pages, status,
		       progress, pages_scraped, products_found, termination_reason,
		       error, created_at, started_at, completed_at
		FROM scrape_jobs
		ORDER BY created_at DESC
		LIMIT 100
	`

	rows, err := m.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job := &Job{}
		err := rows.Scan(
			&job.ID, &job.Platform, &job.SearchQuery, &job.Location, &job.MaxPages, &job.Status,
			&job.Progress, &job.PagesScraped, &job.ProductsFound, &job.TerminationReason,
			&job.Error, &job.CreatedAt, &job.StartedAt, &job.CompletedAt,
		)
		if err != nil {
			continue
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}

// CancelJob cancels a pending job outright or signals a running one to stop.
// A running job still finishes its in-flight page before it winds down.
func (m *Manager) CancelJob(ctx context.Context, jobID string) error {
	tag, err := m.db.Exec(ctx,
		`UPDATE scrape_jobs SET status = $1 WHERE id = $2 AND status = $3`,
		StatusCancelled, jobID, StatusPending)
	if err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}
	if tag.RowsAffected() > 0 {
		m.logger.Info("pending job cancelled", "id", jobID)
		return nil
	}

	m.mu.Lock()
	cancel, running := m.cancels[jobID]
	m.mu.Unlock()
	if running {
		cancel()
		m.logger.Info("running job signalled to cancel", "id", jobID)
		return nil
	}

	job, err := m.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	return fmt.Errorf("job is already %s", job.Status)
}

// GetJobProducts retrieves the products a job captured.
func (m *Manager) GetJobProducts(ctx context.Context, jobID string) ([]*models.Product, error) {
	query := `
		SELECT platform, search_query, store_id, product_id, variant_id,
		       name, brand, mrp, price, quantity, in_stock, inventory,
		       max_allowed_quantity, category, sub_category, images,
		       organic_rank, rating, page, scraped_at
		FROM scraped_products
		WHERE job_id = $1
		ORDER BY page, organic_rank NULLS LAST, product_id
	`

	rows, err := m.db.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get job products: %w", err)
	}
	defer rows.Close()

	var products []*models.Product
	for rows.Next() {
		p := &models.Product{}
		err := rows.Scan(
			&p.Platform, &p.SearchQuery, &p.StoreID, &p.ProductID, &p.VariantID,
			&p.Name, &p.Brand, &p.MRP, &p.Price, &p.Quantity, &p.InStock, &p.Inventory,
			&p.MaxAllowedQuantity, &p.Category, &p.SubCategory, &p.Images,
			&p.OrganicRank, &p.Rating, &p.Page, &p.ScrapedAt,
		)
		if err != nil {
			continue
		}
		products = append(products, p)
	}

	return products, nil
}

// GetStats retrieves aggregate job statistics.
func (m *Manager) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	query := `
		SELECT
			COUNT(*) as total_jobs,
			COUNT(CASE WHEN status = 'pending' THEN 1 END) as pending_jobs,
			COUNT(CASE WHEN status = 'in_progress' THEN 1 END) as running_jobs,
			COUNT(CASE WHEN status = 'completed' THEN 1 END) as completed_jobs,
			COUNT(CASE WHEN status = 'failed' THEN 1 END) as failed_jobs,
			COUNT(CASE WHEN status = 'cancelled' THEN 1 END) as cancelled_jobs
		FROM scrape_jobs
	`

	err := m.db.QueryRow(ctx, query).Scan(
		&stats.TotalJobs, &stats.PendingJobs, &stats.RunningJobs,
		&stats.CompletedJobs, &stats.FailedJobs, &stats.CancelledJobs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	finished := stats.CompletedJobs + stats.FailedJobs
	if finished > 0 {
		stats.SuccessRate = float64(stats.CompletedJobs) / float64(finished) * 100
	}

	m.db.QueryRow(ctx, `SELECT COUNT(*) FROM scraped_products`).Scan(&stats.TotalProducts)

	return stats, nil
}

// updateJobProgress updates the running counters of a job.
func (m *Manager) updateJobProgress(ctx context.Context, jobID string, progress, pagesScraped, productsFound int) error {
	query := `
		UPDATE scrape_jobs
		SET progress = $1, pages_scraped = $2, products_found = $3
		WHERE id = $4
	`
	_, err := m.db.Exec(ctx, query, progress, pagesScraped, productsFound, jobID)
	return err
}

// RunSummary is the per-run bookkeeping stored alongside a finished job.
type RunSummary struct {
	Reason        string `json:"termination_reason"`
	Pages         int    `json:"pages"`
	Products      int    `json:"products"`
	Duplicates    int    `json:"duplicates"`
	Skipped       int    `json:"skipped"`
	DegradedPages int    `json:"degraded_pages"`
	Refreshes     int    `json:"refreshes"`
}

func summarize(result *pipeline.Result) *RunSummary {
	if result == nil {
		return nil
	}
	return &RunSummary{
		Reason:        string(result.Reason),
		Pages:         result.Pages,
		Products:      len(result.Products),
		Duplicates:    result.Duplicates,
		Skipped:       result.Skipped,
		DegradedPages: result.DegradedPages,
		Refreshes:     result.Refreshes,
	}
}

// SaveRun records an already-finished synchronous run as a completed job,
// so ad-hoc searches can opt into the same persistence as queued ones.
func (m *Manager) SaveRun(ctx context.Context, platform, searchQuery, location string, maxPages int, result *pipeline.Result) (*Job, error) {
	now := time.Now()
	reason := string(result.Reason)
	job := &Job{
		ID:                uuid.New().String(),
		Platform:          platform,
		SearchQuery:       searchQuery,
		Location:          location,
		MaxPages:          maxPages,
		Status:            StatusCompleted,
		Progress:          100,
		PagesScraped:      result.Pages,
		ProductsFound:     len(result.Products),
		TerminationReason: &reason,
		CreatedAt:         now,
		StartedAt:         &now,
		CompletedAt:       &now,
	}

	results, err := json.Marshal(summarize(result))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run summary: %w", err)
	}

	query := `
		INSERT INTO scrape_jobs
		(id, platform, search_query, location, max_pages, status, progress,
		 pages_scraped, products_found, termination_reason, results,
		 created_at, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = m.db.Exec(ctx, query,
		job.ID, job.Platform, job.SearchQuery, job.Location, job.MaxPages,
		job.Status, job.Progress, job.PagesScraped, job.ProductsFound,
		job.TerminationReason, results, job.CreatedAt, job.StartedAt, job.CompletedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}

	if err := m.saveProducts(ctx, job.ID, result.Products); err != nil {
		return nil, err
	}

	m.logger.Info("run recorded", "id", job.ID, "platform", platform, "products", job.ProductsFound)
	return job, nil
}

// finishJob records the terminal state of a job.
func (m *Manager) finishJob(ctx context.Context, jobID, status, reason string, result *pipeline.Result, runErr error) error {
	var errText *string
	if runErr != nil {
		s := runErr.Error()
		errText = &s
	}
	var reasonText *string
	if reason != "" {
		reasonText = &reason
	}
	var results []byte
	if summary := summarize(result); summary != nil {
		results, _ = json.Marshal(summary)
	}

	query := `
		UPDATE scrape_jobs
		SET status = $1, termination_reason = $2, error = $3, results = $4, completed_at = $5
		WHERE id = $6
	`
	_, err := m.db.Exec(ctx, query, status, reasonText, errText, results, time.Now(), jobID)
	return err
}
