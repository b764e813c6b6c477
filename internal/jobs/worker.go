package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/models"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/pipeline"
)

const pollInterval = 5 * time.Second

// StartWorkers runs n background workers that drain the pending job queue.
// Blocks until the context is cancelled and all workers have returned.
func (m *Manager) StartWorkers(ctx context.Context, n int) {
	if n < 1 {
		n = 1
	}
	m.logger.Info("job workers starting", "count", n)

	done := make(chan struct{})
	for i := 0; i < n; i++ {
		go func(id int) {
			defer func() { done <- struct{}{} }()
			m.workerLoop(ctx, id)
		}(i)
	}
	for i := 0; i < n; i++ {
		<-done
	}
	m.logger.Info("job workers stopped")
}

func (m *Manager) workerLoop(ctx context.Context, id int) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Drain all pending jobs before going back to sleep.
			for {
				claimed := m.processNextJob(ctx, id)
				if !claimed || ctx.Err() != nil {
					break
				}
			}
		}
	}
}

// processNextJob claims and runs one pending job. Returns false when the
// queue is empty.
func (m *Manager) processNextJob(ctx context.Context, workerID int) bool {
	job, err := m.claimJob(ctx)
	if err != nil {
		if err != pgx.ErrNoRows {
			m.logger.Error("failed to claim job", "error", err)
		}
		return false
	}

	m.logger.Info("processing job",
		"worker", workerID,
		"id", job.ID,
		"platform", job.Platform,
		"query", job.SearchQuery,
	)
	m.runJob(ctx, job)
	return true
}

// claimJob atomically picks the oldest pending job and marks it in progress.
// SKIP LOCKED keeps concurrent workers from grabbing the same row.
func (m *Manager) claimJob(ctx context.Context) (*Job, error) {
	job := &Job{}
	err := m.db.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT id, platform, search_query, location, max_pages
			FROM scrape_jobs
			WHERE status = 'pending'
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		`)
		if err := row.Scan(&job.ID, &job.Platform, &job.SearchQuery, &job.Location, &job.MaxPages); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`UPDATE scrape_jobs SET status = $1, started_at = NOW() WHERE id = $2`,
			StatusInProgress, job.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (m *Manager) runJob(ctx context.Context, job *Job) {
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	m.cancels[job.ID] = cancel
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.cancels, job.ID)
		m.mu.Unlock()
	}()

	result, runErr := m.scraper.Search(jobCtx, job.Platform, job.SearchQuery, job.Location, job.MaxPages)

	// Persistence below must survive job cancellation, so it uses the
	// worker's context, not the job's.
	if result != nil {
		if err := m.saveProducts(ctx, job.ID, result.Products); err != nil {
			m.logger.Error("failed to save products", "id", job.ID, "error", err)
		}
		progress := 100
		if job.MaxPages > 0 && result.Pages < job.MaxPages {
			progress = result.Pages * 100 / job.MaxPages
		}
		if err := m.updateJobProgress(ctx, job.ID, progress, result.Pages, len(result.Products)); err != nil {
			m.logger.Error("failed to update progress", "id", job.ID, "error", err)
		}
	}

	status, reason := finalStatus(result, runErr)
	if err := m.finishJob(ctx, job.ID, status, reason, result, runErr); err != nil {
		m.logger.Error("failed to finish job", "id", job.ID, "error", err)
		return
	}

	if runErr != nil {
		m.logger.Warn("job finished with error", "id", job.ID, "status", status, "error", runErr)
		return
	}
	m.logger.Info("job finished",
		"id", job.ID,
		"status", status,
		"reason", reason,
		"pages", result.Pages,
		"products", len(result.Products),
	)
}

// finalStatus maps a run outcome onto a job status. Partial results are
// persisted either way, so a failed run still leaves its products behind.
func finalStatus(result *pipeline.Result, runErr error) (status, reason string) {
	if result == nil {
		return StatusFailed, ""
	}
	reason = string(result.Reason)
	switch {
	case result.Reason == pipeline.ReasonCancelled:
		return StatusCancelled, reason
	case runErr != nil || result.Reason == pipeline.ReasonFailed:
		return StatusFailed, reason
	default:
		return StatusCompleted, reason
	}
}

// saveProducts upserts a run's products. Identities captured by earlier
// jobs are skipped via the seen store; within a job the primary key keeps
// replays from duplicating rows.
func (m *Manager) saveProducts(ctx context.Context, jobID string, products []*models.Product) error {
	products = m.filterSeen(ctx, products)
	if len(products) == 0 {
		return nil
	}

	err := m.db.WithTx(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO scraped_products (
				job_id, platform, store_id, product_id, variant_id,
				search_query, name, brand, mrp, price, quantity, in_stock,
				inventory, max_allowed_quantity, category, sub_category,
				images, organic_rank, rating, page, scraped_at
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
				$13, $14, $15, $16, $17, $18, $19, $20, $21
			)
			ON CONFLICT (job_id, platform, store_id, product_id, variant_id) DO NOTHING
		`
		for _, p := range products {
			_, err := tx.Exec(ctx, query,
				jobID, p.Platform, p.StoreID, p.ProductID, p.VariantID,
				p.SearchQuery, p.Name, p.Brand, p.MRP, p.Price, p.Quantity, p.InStock,
				p.Inventory, p.MaxAllowedQuantity, p.Category, p.SubCategory,
				p.Images, p.OrganicRank, p.Rating, p.Page, p.ScrapedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to insert product %s: %w", p.Identity(), err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Cross-job dedup bookkeeping is advisory. Failures are logged, never fatal.
	identities := make([]string, 0, len(products))
	for _, p := range products {
		identities = append(identities, p.Identity())
	}
	if m.seen != nil {
		if err := m.seen.MarkAll(ctx, identities); err != nil {
			m.logger.Warn("failed to mark seen identities", "error", err)
		}
	}

	return nil
}

// filterSeen drops products whose identity an earlier job already recorded.
// The store is advisory: lookup failures count as unseen.
func (m *Manager) filterSeen(ctx context.Context, products []*models.Product) []*models.Product {
	if m.seen == nil {
		return products
	}
	fresh := make([]*models.Product, 0, len(products))
	for _, p := range products {
		dup, err := m.seen.Seen(ctx, p.Identity())
		if err != nil {
			m.logger.Warn("seen lookup failed", "identity", p.Identity(), "error", err)
			fresh = append(fresh, p)
			continue
		}
		if !dup {
			fresh = append(fresh, p)
		}
	}
	if skipped := len(products) - len(fresh); skipped > 0 {
		m.logger.Info("skipped products captured by earlier jobs", "count", skipped)
	}
	return fresh
}
