package event

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mealtracker/backend/internal/domain/catalog"
	"github.com/mealtracker/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeOutboxRepo is a map-backed outbox repository
type fakeOutboxRepo struct {
	entries   map[uuid.UUID]*shared.OutboxEntry
	findErr   error
	updateErr error
}

func newFakeOutboxRepo() *fakeOutboxRepo {
	return &fakeOutboxRepo{entries: make(map[uuid.UUID]*shared.OutboxEntry)}
}

func (r *fakeOutboxRepo) add(status shared.OutboxStatus, age time.Duration) *shared.OutboxEntry {
	created := time.Now().Add(-age)
	entry := &shared.OutboxEntry{
		ID:            uuid.New(),
		EventID:       uuid.New(),
		EventType:     catalog.EventTypeProductUpdated,
		AggregateID:   uuid.New(),
		AggregateType: catalog.AggregateTypeProduct,
		Status:        status,
		MaxRetries:    shared.DefaultMaxRetries,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
	if status == shared.OutboxStatusDead {
		entry.RetryCount = shared.DefaultMaxRetries
		entry.LastError = "snapshot store unavailable"
	}
	r.entries[entry.ID] = entry
	return entry
}

func (r *fakeOutboxRepo) Save(_ context.Context, entries ...*shared.OutboxEntry) error {
	for _, e := range entries {
		r.entries[e.ID] = e
	}
	return nil
}

func (r *fakeOutboxRepo) FindPending(context.Context, int) ([]*shared.OutboxEntry, error) {
	return nil, nil
}

func (r *fakeOutboxRepo) FindRetryable(context.Context, time.Time, int) ([]*shared.OutboxEntry, error) {
	return nil, nil
}

func (r *fakeOutboxRepo) FindUnsettled(context.Context, []uuid.UUID) ([]*shared.OutboxEntry, error) {
	return nil, nil
}

func (r *fakeOutboxRepo) FindDead(_ context.Context, page, pageSize int) ([]*shared.OutboxEntry, int64, error) {
	if r.findErr != nil {
		return nil, 0, r.findErr
	}
	var dead []*shared.OutboxEntry
	for _, e := range r.entries {
		if e.Status == shared.OutboxStatusDead {
			dead = append(dead, e)
		}
	}
	sort.Slice(dead, func(i, j int) bool { return dead[i].UpdatedAt.After(dead[j].UpdatedAt) })

	total := int64(len(dead))
	start := (page - 1) * pageSize
	if start >= len(dead) {
		return nil, total, nil
	}
	end := min(start+pageSize, len(dead))
	return dead[start:end], total, nil
}

func (r *fakeOutboxRepo) FindByID(_ context.Context, id uuid.UUID) (*shared.OutboxEntry, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	if e, ok := r.entries[id]; ok {
		return e, nil
	}
	return nil, shared.NewNotFoundError("OutboxEntry", id)
}

func (r *fakeOutboxRepo) MarkProcessing(context.Context, []uuid.UUID) ([]*shared.OutboxEntry, error) {
	return nil, nil
}

func (r *fakeOutboxRepo) Update(_ context.Context, entry *shared.OutboxEntry) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.entries[entry.ID] = entry
	return nil
}

func (r *fakeOutboxRepo) ReleaseStale(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (r *fakeOutboxRepo) DeleteOlderThan(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (r *fakeOutboxRepo) CountByStatus(context.Context) (map[shared.OutboxStatus]int64, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	counts := make(map[shared.OutboxStatus]int64)
	for _, e := range r.entries {
		counts[e.Status]++
	}
	return counts, nil
}

func TestOutboxService_GetDeadLetterEntries(t *testing.T) {
	repo := newFakeOutboxRepo()
	for i := range 5 {
		repo.add(shared.OutboxStatusDead, time.Duration(i)*time.Minute)
	}
	repo.add(shared.OutboxStatusPending, 0)
	service := NewOutboxService(repo, zap.NewNop())

	result, err := service.GetDeadLetterEntries(context.Background(), OutboxFilter{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.Total)
	assert.Equal(t, 3, result.TotalPages)
	assert.Len(t, result.Entries, 2)
	for _, entry := range result.Entries {
		assert.Equal(t, "DEAD", entry.Status)
		assert.Equal(t, "product.updated", entry.Topic)
		assert.Equal(t, "snapshot store unavailable", entry.LastError)
	}
}

func TestOutboxService_GetDeadLetterEntries_PageDefaults(t *testing.T) {
	repo := newFakeOutboxRepo()
	service := NewOutboxService(repo, zap.NewNop())

	result, err := service.GetDeadLetterEntries(context.Background(), OutboxFilter{PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Page)
	assert.Equal(t, 100, result.PageSize)
	assert.Empty(t, result.Entries)

	result, err = service.GetDeadLetterEntries(context.Background(), OutboxFilter{})
	require.NoError(t, err)
	assert.Equal(t, 20, result.PageSize)
}

func TestOutboxService_GetEntry(t *testing.T) {
	repo := newFakeOutboxRepo()
	entry := repo.add(shared.OutboxStatusSent, 0)
	service := NewOutboxService(repo, zap.NewNop())

	dto, err := service.GetEntry(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.EventID, dto.EventID)
	assert.Equal(t, "SENT", dto.Status)

	_, err = service.GetEntry(context.Background(), uuid.New())
	assert.True(t, shared.IsNotFound(err))
}

func TestOutboxService_RetryDeadEntry(t *testing.T) {
	repo := newFakeOutboxRepo()
	dead := repo.add(shared.OutboxStatusDead, 0)
	service := NewOutboxService(repo, zap.NewNop())

	result, err := service.RetryDeadEntry(context.Background(), dead.ID)
	require.NoError(t, err)
	assert.Equal(t, "PENDING", result.Status)
	assert.Equal(t, 0, result.RetryCount)
	assert.Empty(t, result.LastError)
	assert.Equal(t, shared.OutboxStatusPending, repo.entries[dead.ID].Status)
}

func TestOutboxService_RetryDeadEntry_Rejections(t *testing.T) {
	t.Run("unknown entry", func(t *testing.T) {
		service := NewOutboxService(newFakeOutboxRepo(), zap.NewNop())
		_, err := service.RetryDeadEntry(context.Background(), uuid.New())
		assert.Equal(t, shared.CodeNotFound, shared.ErrorCode(err))
	})

	t.Run("entry is not dead", func(t *testing.T) {
		repo := newFakeOutboxRepo()
		pending := repo.add(shared.OutboxStatusPending, 0)
		service := NewOutboxService(repo, zap.NewNop())

		_, err := service.RetryDeadEntry(context.Background(), pending.ID)
		assert.Equal(t, shared.CodeInvalidArgument, shared.ErrorCode(err))
		assert.Equal(t, shared.OutboxStatusPending, pending.Status)
	})

	t.Run("repository failure", func(t *testing.T) {
		repo := newFakeOutboxRepo()
		dead := repo.add(shared.OutboxStatusDead, 0)
		repo.updateErr = errors.New("connection reset")
		service := NewOutboxService(repo, zap.NewNop())

		_, err := service.RetryDeadEntry(context.Background(), dead.ID)
		assert.Equal(t, shared.CodeStorageError, shared.ErrorCode(err))
	})
}

func TestOutboxService_RetryAllDeadEntries(t *testing.T) {
	repo := newFakeOutboxRepo()
	for i := range 130 {
		repo.add(shared.OutboxStatusDead, time.Duration(i)*time.Second)
	}
	pending := repo.add(shared.OutboxStatusPending, 0)
	service := NewOutboxService(repo, zap.NewNop())

	count, err := service.RetryAllDeadEntries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(130), count)

	for _, entry := range repo.entries {
		assert.Equal(t, shared.OutboxStatusPending, entry.Status)
		if entry.ID != pending.ID {
			assert.Equal(t, 0, entry.RetryCount)
		}
	}
}

func TestOutboxService_RetryAllDeadEntries_StopsWhenNothingProgresses(t *testing.T) {
	repo := newFakeOutboxRepo()
	for range 120 {
		repo.add(shared.OutboxStatusDead, 0)
	}
	repo.updateErr = errors.New("read only")
	service := NewOutboxService(repo, zap.NewNop())

	count, err := service.RetryAllDeadEntries(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestOutboxService_GetStats(t *testing.T) {
	repo := newFakeOutboxRepo()
	for _, status := range []shared.OutboxStatus{
		shared.OutboxStatusPending,
		shared.OutboxStatusPending,
		shared.OutboxStatusProcessing,
		shared.OutboxStatusSent,
		shared.OutboxStatusSent,
		shared.OutboxStatusSent,
		shared.OutboxStatusFailed,
		shared.OutboxStatusDead,
	} {
		repo.add(status, 0)
	}
	service := NewOutboxService(repo, zap.NewNop())

	stats, err := service.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Pending)
	assert.Equal(t, int64(1), stats.Processing)
	assert.Equal(t, int64(3), stats.Sent)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(1), stats.Dead)
	assert.Equal(t, int64(8), stats.Total)
}

func TestOutboxService_GetStats_StorageError(t *testing.T) {
	repo := newFakeOutboxRepo()
	repo.findErr = errors.New("timeout")
	service := NewOutboxService(repo, zap.NewNop())

	_, err := service.GetStats(context.Background())
	assert.True(t, shared.IsStorageError(err))
}
