package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/models"
	"github.com/mgnirbhaysingh/quickcomm-scraper/internal/pipeline"
)

func TestFinalStatus(t *testing.T) {
	tests := []struct {
		name       string
		result     *pipeline.Result
		runErr     error
		wantStatus string
		wantReason string
	}{
		{
			name:       "exhausted run completes",
			result:     &pipeline.Result{Reason: pipeline.ReasonExhausted},
			wantStatus: StatusCompleted,
			wantReason: "exhausted",
		},
		{
			name:       "page limit completes",
			result:     &pipeline.Result{Reason: pipeline.ReasonLimitReached},
			wantStatus: StatusCompleted,
			wantReason: "limit_reached",
		},
		{
			name:       "cancelled run maps to cancelled even without error",
			result:     &pipeline.Result{Reason: pipeline.ReasonCancelled},
			wantStatus: StatusCancelled,
			wantReason: "cancelled",
		},
		{
			name:       "fetch failure fails the job but keeps the reason",
			result:     &pipeline.Result{Reason: pipeline.ReasonFailed},
			runErr:     pipeline.ErrFetchFailed,
			wantStatus: StatusFailed,
			wantReason: "failed",
		},
		{
			name:       "no result at all fails",
			result:     nil,
			wantStatus: StatusFailed,
			wantReason: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, reason := finalStatus(tt.result, tt.runErr)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

type stubSeenStore struct {
	entries map[string]bool
	lookErr error
	marked  []string
}

func (s *stubSeenStore) Seen(_ context.Context, identity string) (bool, error) {
	if s.lookErr != nil {
		return false, s.lookErr
	}
	return s.entries[identity], nil
}

func (s *stubSeenStore) MarkAll(_ context.Context, identities []string) error {
	s.marked = append(s.marked, identities...)
	return nil
}

func testProduct(id string) *models.Product {
	return &models.Product{Platform: "zepto", StoreID: "S1", ProductID: id, VariantID: "v1"}
}

func TestFilterSeenSkipsEarlierCaptures(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, b, c := testProduct("a"), testProduct("b"), testProduct("c")

	t.Run("seen identities are dropped", func(t *testing.T) {
		store := &stubSeenStore{entries: map[string]bool{b.Identity(): true}}
		m := &Manager{seen: store, logger: logger}

		fresh := m.filterSeen(context.Background(), []*models.Product{a, b, c})
		assert.Equal(t, []*models.Product{a, c}, fresh)
	})

	t.Run("lookup failures count as unseen", func(t *testing.T) {
		store := &stubSeenStore{lookErr: errors.New("redis down")}
		m := &Manager{seen: store, logger: logger}

		fresh := m.filterSeen(context.Background(), []*models.Product{a, b})
		assert.Len(t, fresh, 2)
	})

	t.Run("nil store keeps everything", func(t *testing.T) {
		m := &Manager{logger: logger}

		fresh := m.filterSeen(context.Background(), []*models.Product{a, b})
		assert.Len(t, fresh, 2)
	})
}
