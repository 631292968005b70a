package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vaultsweep/vaultsweep/internal/models"
	"github.com/vaultsweep/vaultsweep/internal/policy"
	"github.com/vaultsweep/vaultsweep/internal/queue"
	"github.com/vaultsweep/vaultsweep/pkg/audit"
)

// MockUserStore simulates database access for users.
type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserStore) ListDue(ctx context.Context) ([]*models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.User), args.Error(1)
}

func (m *MockUserStore) UpdateLastSwept(ctx context.Context, id uuid.UUID, t time.Time) error {
	args := m.Called(ctx, id, t)
	return args.Error(0)
}

// MockRunStore simulates the prune run audit log.
type MockRunStore struct {
	mock.Mock
}

func (m *MockRunStore) Create(ctx context.Context, run *models.PruneRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockRunStore) GetLastRun(ctx context.Context, userID uuid.UUID) (*models.PruneRun, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PruneRun), args.Error(1)
}

// MockEngine simulates the retention engine.
type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) Prune(ctx context.Context, userID uuid.UUID, category models.Category, override *policy.Override) (*models.PruningResult, error) {
	args := m.Called(ctx, userID, category, override)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PruningResult), args.Error(1)
}

// MockNotifier captures alerts.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendAlert(ctx context.Context, userID, severity, message string) error {
	args := m.Called(ctx, userID, severity, message)
	return args.Error(0)
}

// MockEnqueuer simulates the asynq client.
type MockEnqueuer struct {
	mock.Mock
}

func (m *MockEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(ctx, task)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*asynq.TaskInfo), args.Error(1)
}

// MockDeleter simulates a storage backend's delete surface.
type MockDeleter struct {
	mock.Mock
}

func (m *MockDeleter) DeleteItem(ctx context.Context, reference string) error {
	args := m.Called(ctx, reference)
	return args.Error(0)
}

// MockIndex simulates the item index.
type MockIndex struct {
	mock.Mock
}

func (m *MockIndex) Delete(ctx context.Context, reference string) error {
	args := m.Called(ctx, reference)
	return args.Error(0)
}

func fixedFactory(engine PruneEngine) EngineFactory {
	return func(_ context.Context, _ *models.User) (PruneEngine, error) {
		return engine, nil
	}
}

func pruneTask(t *testing.T, p queue.PruneRunPayload) *asynq.Task {
	t.Helper()
	task, err := queue.NewPruneRunTask(p)
	require.NoError(t, err)
	return task
}

// ── PruneProcessor ────────────────────────────────────────────────────────────

func TestPruneProcessor_CleanRun(t *testing.T) {
	userID := uuid.New()
	user := &models.User{ID: userID, Active: true}
	result := &models.PruningResult{
		ItemsScanned:      12,
		ItemsDeleted:      5,
		BytesFreed:        4096,
		DuplicatesRemoved: 2,
	}

	users := new(MockUserStore)
	runs := new(MockRunStore)
	engine := new(MockEngine)

	users.On("GetByID", mock.Anything, userID).Return(user, nil)
	engine.On("Prune", mock.Anything, userID, models.CategoryRawSnapshot, (*policy.Override)(nil)).Return(result, nil)
	runs.On("GetLastRun", mock.Anything, userID).Return(nil, errors.New("no rows"))

	var recorded *models.PruneRun
	runs.On("Create", mock.Anything, mock.AnythingOfType("*models.PruneRun")).
		Run(func(args mock.Arguments) { recorded = args.Get(1).(*models.PruneRun) }).
		Return(nil)

	p := NewPruneProcessor(users, runs, fixedFactory(engine), nil, zap.NewNop())
	err := p.ProcessTask(context.Background(), pruneTask(t, queue.PruneRunPayload{
		UserID:   userID,
		Category: models.CategoryRawSnapshot,
	}))
	require.NoError(t, err)

	require.NotNil(t, recorded)
	assert.Equal(t, models.RunStatusDone, recorded.Status)
	assert.Equal(t, 12, recorded.ItemsScanned)
	assert.Equal(t, 5, recorded.ItemsDeleted)
	assert.Equal(t, int64(4096), recorded.BytesFreed)
	assert.Equal(t, 2, recorded.DuplicatesRemoved)
	assert.Empty(t, recorded.Errors)

	// First run in the chain: hash must link from the genesis seed.
	digest, err := audit.ResultDigest(result)
	require.NoError(t, err)
	assert.Equal(t,
		audit.ChainHash(audit.GenesisHash, digest, recorded.ID.String()),
		recorded.ChainHash)

	users.AssertExpectations(t)
	runs.AssertExpectations(t)
	engine.AssertExpectations(t)
}

func TestPruneProcessor_ChainsFromPreviousRun(t *testing.T) {
	userID := uuid.New()
	prev := &models.PruneRun{ID: uuid.New(), UserID: userID, ChainHash: "abc123"}
	result := &models.PruningResult{ItemsScanned: 3}

	users := new(MockUserStore)
	runs := new(MockRunStore)
	engine := new(MockEngine)

	users.On("GetByID", mock.Anything, userID).Return(&models.User{ID: userID}, nil)
	engine.On("Prune", mock.Anything, userID, models.CategoryReport, (*policy.Override)(nil)).Return(result, nil)
	runs.On("GetLastRun", mock.Anything, userID).Return(prev, nil)

	var recorded *models.PruneRun
	runs.On("Create", mock.Anything, mock.AnythingOfType("*models.PruneRun")).
		Run(func(args mock.Arguments) { recorded = args.Get(1).(*models.PruneRun) }).
		Return(nil)

	p := NewPruneProcessor(users, runs, fixedFactory(engine), nil, zap.NewNop())
	err := p.ProcessTask(context.Background(), pruneTask(t, queue.PruneRunPayload{
		UserID:   userID,
		Category: models.CategoryReport,
	}))
	require.NoError(t, err)

	digest, err := audit.ResultDigest(result)
	require.NoError(t, err)
	assert.Equal(t,
		audit.ChainHash(prev.ChainHash, digest, recorded.ID.String()),
		recorded.ChainHash)
}

func TestPruneProcessor_PartialRunAlerts(t *testing.T) {
	userID := uuid.New()
	result := &models.PruningResult{
		ItemsScanned: 5,
		ItemsDeleted: 3,
		Errors:       []string{"vault/x: timeout", "vault/y: timeout"},
	}

	users := new(MockUserStore)
	runs := new(MockRunStore)
	engine := new(MockEngine)
	notifier := new(MockNotifier)

	users.On("GetByID", mock.Anything, userID).Return(&models.User{ID: userID}, nil)
	engine.On("Prune", mock.Anything, userID, models.CategoryContextVault, (*policy.Override)(nil)).Return(result, nil)
	runs.On("GetLastRun", mock.Anything, userID).Return(nil, errors.New("no rows"))

	var recorded *models.PruneRun
	runs.On("Create", mock.Anything, mock.AnythingOfType("*models.PruneRun")).
		Run(func(args mock.Arguments) { recorded = args.Get(1).(*models.PruneRun) }).
		Return(nil)
	notifier.On("SendAlert", mock.Anything, userID.String(), "warning", mock.Anything).Return(nil)

	p := NewPruneProcessor(users, runs, fixedFactory(engine), notifier, zap.NewNop())
	err := p.ProcessTask(context.Background(), pruneTask(t, queue.PruneRunPayload{
		UserID:   userID,
		Category: models.CategoryContextVault,
	}))
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusPartial, recorded.Status)
	assert.Len(t, recorded.Errors, 2)
	notifier.AssertExpectations(t)
}

func TestPruneProcessor_EngineFailureRecordsFailedRun(t *testing.T) {
	userID := uuid.New()

	users := new(MockUserStore)
	runs := new(MockRunStore)
	engine := new(MockEngine)
	notifier := new(MockNotifier)

	users.On("GetByID", mock.Anything, userID).Return(&models.User{ID: userID}, nil)
	engine.On("Prune", mock.Anything, userID, models.Category("bogus"), (*policy.Override)(nil)).
		Return(nil, errors.New("retention policy: unknown category"))
	runs.On("GetLastRun", mock.Anything, userID).Return(nil, errors.New("no rows"))

	var recorded *models.PruneRun
	runs.On("Create", mock.Anything, mock.AnythingOfType("*models.PruneRun")).
		Run(func(args mock.Arguments) { recorded = args.Get(1).(*models.PruneRun) }).
		Return(nil)
	notifier.On("SendAlert", mock.Anything, userID.String(), "critical", mock.Anything).Return(nil)

	p := NewPruneProcessor(users, runs, fixedFactory(engine), notifier, zap.NewNop())
	err := p.ProcessTask(context.Background(), pruneTask(t, queue.PruneRunPayload{
		UserID:   userID,
		Category: models.Category("bogus"),
	}))
	require.Error(t, err)

	require.NotNil(t, recorded, "failed run must still be recorded")
	assert.Equal(t, models.RunStatusFailed, recorded.Status)
	assert.Contains(t, recorded.ErrMsg, "unknown category")
	assert.NotEmpty(t, recorded.ChainHash, "chain must advance over failed runs")
	notifier.AssertExpectations(t)
}

// ── IndexedDeleter ────────────────────────────────────────────────────────────

func TestIndexedDeleter_ObjectThenIndex(t *testing.T) {
	store := new(MockDeleter)
	index := new(MockIndex)
	store.On("DeleteItem", mock.Anything, "vault/a").Return(nil)
	index.On("Delete", mock.Anything, "vault/a").Return(nil)

	d := &IndexedDeleter{Store: store, Index: index}
	require.NoError(t, d.DeleteItem(context.Background(), "vault/a"))
	store.AssertExpectations(t)
	index.AssertExpectations(t)
}

func TestIndexedDeleter_StoreFailureSkipsIndex(t *testing.T) {
	store := new(MockDeleter)
	index := new(MockIndex)
	store.On("DeleteItem", mock.Anything, "vault/a").Return(errors.New("timeout"))

	d := &IndexedDeleter{Store: store, Index: index}
	err := d.DeleteItem(context.Background(), "vault/a")
	require.Error(t, err)
	index.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestIndexedDeleter_IndexFailurePropagates(t *testing.T) {
	store := new(MockDeleter)
	index := new(MockIndex)
	store.On("DeleteItem", mock.Anything, "vault/a").Return(nil)
	index.On("Delete", mock.Anything, "vault/a").Return(errors.New("db down"))

	d := &IndexedDeleter{Store: store, Index: index}
	err := d.DeleteItem(context.Background(), "vault/a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "drop index row")
}

// ── SweepScheduler ────────────────────────────────────────────────────────────

func TestSweepScheduler_EnqueuesPerCategory(t *testing.T) {
	userID := uuid.New()
	users := new(MockUserStore)
	enq := new(MockEnqueuer)
	table := policy.Defaults()

	users.On("ListDue", mock.Anything).Return([]*models.User{{ID: userID, Active: true}}, nil)
	enq.On("EnqueueContext", mock.Anything, mock.AnythingOfType("*asynq.Task")).
		Return(&asynq.TaskInfo{}, nil)
	users.On("UpdateLastSwept", mock.Anything, userID, mock.AnythingOfType("time.Time")).Return(nil)

	s := NewSweepScheduler(users, enq, table, zap.NewNop(), time.Minute)
	s.schedule(context.Background())

	enq.AssertNumberOfCalls(t, "EnqueueContext", len(table))
	users.AssertExpectations(t)
}

func TestSweepScheduler_DuplicateWindowSkipsLastSweptUpdate(t *testing.T) {
	userID := uuid.New()
	users := new(MockUserStore)
	enq := new(MockEnqueuer)

	swept := time.Now().Add(-time.Hour)
	users.On("ListDue", mock.Anything).
		Return([]*models.User{{ID: userID, LastSweptAt: &swept}}, nil)
	enq.On("EnqueueContext", mock.Anything, mock.AnythingOfType("*asynq.Task")).
		Return(nil, asynq.ErrTaskIDConflict)

	s := NewSweepScheduler(users, enq, policy.Defaults(), zap.NewNop(), time.Minute)
	s.schedule(context.Background())

	users.AssertNotCalled(t, "UpdateLastSwept", mock.Anything, mock.Anything, mock.Anything)
}

func TestSweepScheduler_ListDueFailureIsNonFatal(t *testing.T) {
	users := new(MockUserStore)
	enq := new(MockEnqueuer)
	users.On("ListDue", mock.Anything).Return(nil, errors.New("db down"))

	s := NewSweepScheduler(users, enq, policy.Defaults(), zap.NewNop(), time.Minute)
	s.schedule(context.Background())

	enq.AssertNotCalled(t, "EnqueueContext", mock.Anything, mock.Anything)
}
