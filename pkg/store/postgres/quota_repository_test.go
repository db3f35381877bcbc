package postgres

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/panelstack/quotad/pkg/model"
)

var testDefaults = model.ResourceVector{
	Memory: 2048, CPU: 100, Disk: 4096, Servers: 1, Databases: 3, Backups: 5, Allocations: 5,
}

var testMaximums = model.ResourceVector{
	Memory: 65536, CPU: 1000, Disk: 131072, Servers: 50, Databases: 100, Backups: 200, Allocations: 200,
}

type settingsStub struct {
	defaults model.ResourceVector
	maximums model.ResourceVector
}

func (s *settingsStub) DefaultResources(context.Context) model.ResourceVector { return s.defaults }
func (s *settingsStub) MaxResources(context.Context) model.ResourceVector    { return s.maximums }

// newTestDB opens a file-backed sqlite database in the test's temp dir.
// _txlock=immediate makes every transaction take the write lock up front, so
// concurrent adjustments serialize the way FOR UPDATE serializes them on
// postgres instead of deadlocking on a lock upgrade.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_txlock=immediate", filepath.Join(t.TempDir(), "quotad.db"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := NewStoreWithDB(db).AutoMigrate(); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func newTestQuotaRepo(t *testing.T) (*QuotaRepository, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	seedUser(t, db, 1, "alice")
	repo := NewQuotaRepository(db, &settingsStub{defaults: testDefaults, maximums: testMaximums}, zap.NewNop())
	return repo, db
}

func seedUser(t *testing.T, db *gorm.DB, id uint, username string) {
	t.Helper()
	if err := db.Create(&model.User{ID: id, Username: username}).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
}

func TestGetByUserReturnsNilWhenAbsent(t *testing.T) {
	repo, _ := newTestQuotaRepo(t)

	quota, err := repo.GetByUser(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetByUser error: %v", err)
	}
	if quota != nil {
		t.Fatalf("expected nil for absent record, got %+v", quota)
	}
}

func TestEnsureForUserIsIdempotent(t *testing.T) {
	repo, db := newTestQuotaRepo(t)
	ctx := context.Background()

	first, err := repo.EnsureForUser(ctx, 1)
	if err != nil {
		t.Fatalf("first EnsureForUser error: %v", err)
	}
	if first.Vector() != testDefaults {
		t.Fatalf("expected default-seeded record, got %+v", first.Vector())
	}

	second, err := repo.EnsureForUser(ctx, 1)
	if err != nil {
		t.Fatalf("second EnsureForUser error: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected the same record on repeat, got %s then %s", first.ID, second.ID)
	}

	var count int64
	if err := db.Model(&model.UserQuota{}).Count(&count).Error; err != nil {
		t.Fatalf("count error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one row, got %d", count)
	}
}

func TestEnsureForUserRejectsUnknownUser(t *testing.T) {
	repo, _ := newTestQuotaRepo(t)

	_, err := repo.EnsureForUser(context.Background(), 99)
	if !errors.Is(err, ErrUserMissing) {
		t.Fatalf("expected ErrUserMissing, got %v", err)
	}
}

func TestCreateEnforcesOneRecordPerUser(t *testing.T) {
	repo, _ := newTestQuotaRepo(t)
	ctx := context.Background()

	first := &model.UserQuota{UserID: 1}
	first.SetVector(testDefaults)
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	duplicate := &model.UserQuota{UserID: 1}
	duplicate.SetVector(testDefaults)
	if err := repo.Create(ctx, duplicate); !errors.Is(err, ErrQuotaExists) {
		t.Fatalf("expected ErrQuotaExists, got %v", err)
	}

	if err := repo.Create(ctx, &model.UserQuota{}); !errors.Is(err, ErrUserMissing) {
		t.Fatalf("expected ErrUserMissing for missing user_id, got %v", err)
	}
}

func TestUpdateForUserWhitelistAndMax(t *testing.T) {
	repo, _ := newTestQuotaRepo(t)
	ctx := context.Background()

	if err := repo.UpdateForUser(ctx, 1, nil); !errors.Is(err, ErrEmptyUpdate) {
		t.Fatalf("expected ErrEmptyUpdate for empty payload, got %v", err)
	}

	err := repo.UpdateForUser(ctx, 1, map[model.ResourceType]int{
		model.ResourceType("id"): 12345,
	})
	if !errors.Is(err, ErrEmptyUpdate) {
		t.Fatalf("expected non-resource keys to be dropped, got %v", err)
	}

	err = repo.UpdateForUser(ctx, 1, map[model.ResourceType]int{
		model.ResourceMemory: testMaximums.Memory + 1,
	})
	if !errors.Is(err, ErrExceedsMax) {
		t.Fatalf("expected ErrExceedsMax, got %v", err)
	}
}

func TestUpdateForUserInsertsMergedDefaults(t *testing.T) {
	repo, _ := newTestQuotaRepo(t)
	ctx := context.Background()

	err := repo.UpdateForUser(ctx, 1, map[model.ResourceType]int{
		model.ResourceCPU: 250,
	})
	if err != nil {
		t.Fatalf("UpdateForUser error: %v", err)
	}

	quota, err := repo.GetByUser(ctx, 1)
	if err != nil || quota == nil {
		t.Fatalf("expected record after update, got %v / %v", quota, err)
	}
	want := testDefaults
	want.CPU = 250
	if quota.Vector() != want {
		t.Fatalf("expected defaults merged with update %+v, got %+v", want, quota.Vector())
	}
}

func TestUpdateByIDSkipsMaxCheck(t *testing.T) {
	repo, _ := newTestQuotaRepo(t)
	ctx := context.Background()

	quota, err := repo.EnsureForUser(ctx, 1)
	if err != nil {
		t.Fatalf("EnsureForUser error: %v", err)
	}

	err = repo.UpdateByID(ctx, quota.ID.String(), map[model.ResourceType]int{
		model.ResourceMemory: testMaximums.Memory * 2,
	})
	if err != nil {
		t.Fatalf("expected admin override to bypass max check, got %v", err)
	}

	reloaded, _ := repo.GetByUser(ctx, 1)
	if reloaded.MemoryLimit != testMaximums.Memory*2 {
		t.Fatalf("expected raw value persisted, got %d", reloaded.MemoryLimit)
	}

	err = repo.UpdateByID(ctx, "00000000-0000-0000-0000-000000000000", map[model.ResourceType]int{
		model.ResourceMemory: 1,
	})
	if !errors.Is(err, ErrQuotaNotFound) {
		t.Fatalf("expected ErrQuotaNotFound for unknown id, got %v", err)
	}
}

func TestAdjustForUserRoundTrip(t *testing.T) {
	repo, _ := newTestQuotaRepo(t)
	ctx := context.Background()

	if _, err := repo.EnsureForUser(ctx, 1); err != nil {
		t.Fatalf("EnsureForUser error: %v", err)
	}
	before, _ := repo.GetResource(ctx, 1, model.ResourceBackups)

	if err := repo.AdjustForUser(ctx, 1, model.ResourceBackups, 7); err != nil {
		t.Fatalf("adjust +7 error: %v", err)
	}
	if err := repo.AdjustForUser(ctx, 1, model.ResourceBackups, -7); err != nil {
		t.Fatalf("adjust -7 error: %v", err)
	}

	after, _ := repo.GetResource(ctx, 1, model.ResourceBackups)
	if after != before {
		t.Fatalf("expected round trip to restore %d, got %d", before, after)
	}
}

func TestAdjustForUserSeedsAbsentRow(t *testing.T) {
	repo, _ := newTestQuotaRepo(t)
	ctx := context.Background()

	if err := repo.AdjustForUser(ctx, 1, model.ResourceDatabases, 2); err != nil {
		t.Fatalf("adjust on absent row error: %v", err)
	}

	quota, _ := repo.GetByUser(ctx, 1)
	if quota == nil {
		t.Fatalf("expected row created by adjustment")
	}
	if quota.DatabaseLimit != testDefaults.Databases+2 {
		t.Fatalf("expected default %d plus delta 2, got %d", testDefaults.Databases, quota.DatabaseLimit)
	}
	if quota.MemoryLimit != testDefaults.Memory {
		t.Fatalf("expected untouched fields seeded from defaults, got %d", quota.MemoryLimit)
	}
}

func TestAdjustForUserNegativeBalanceGuard(t *testing.T) {
	repo, _ := newTestQuotaRepo(t)
	ctx := context.Background()

	if _, err := repo.EnsureForUser(ctx, 1); err != nil {
		t.Fatalf("EnsureForUser error: %v", err)
	}

	err := repo.AdjustForUser(ctx, 1, model.ResourceServers, -(testDefaults.Servers + 1))
	if !errors.Is(err, ErrInsufficient) {
		t.Fatalf("expected ErrInsufficient, got %v", err)
	}

	value, _ := repo.GetResource(ctx, 1, model.ResourceServers)
	if value != testDefaults.Servers {
		t.Fatalf("failed adjustment must leave value unchanged, got %d", value)
	}
}

func TestAdjustForUserMaxCeiling(t *testing.T) {
	repo, _ := newTestQuotaRepo(t)
	ctx := context.Background()

	err := repo.AdjustForUser(ctx, 1, model.ResourceAllocations, testMaximums.Allocations)
	if !errors.Is(err, ErrExceedsMax) {
		t.Fatalf("expected ErrExceedsMax, got %v", err)
	}
}

func TestAdjustForUserUnknownResource(t *testing.T) {
	repo, _ := newTestQuotaRepo(t)

	err := repo.AdjustForUser(context.Background(), 1, model.ResourceType("gpu_limit"), 1)
	if !errors.Is(err, ErrUnknownResource) {
		t.Fatalf("expected ErrUnknownResource, got %v", err)
	}
}

func TestAdjustForUserConcurrentAtCeiling(t *testing.T) {
	repo, _ := newTestQuotaRepo(t)
	ctx := context.Background()

	// Park allocation_limit one below the maximum, then race two +1 deltas:
	// exactly one may win.
	if _, err := repo.EnsureForUser(ctx, 1); err != nil {
		t.Fatalf("EnsureForUser error: %v", err)
	}
	headroom := testMaximums.Allocations - 1 - testDefaults.Allocations
	if err := repo.AdjustForUser(ctx, 1, model.ResourceAllocations, headroom); err != nil {
		t.Fatalf("failed to park value below ceiling: %v", err)
	}

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- repo.AdjustForUser(ctx, 1, model.ResourceAllocations, 1)
		}()
	}
	wg.Wait()
	close(results)

	var ok, rejected int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrExceedsMax):
			rejected++
		default:
			t.Fatalf("unexpected adjustment error: %v", err)
		}
	}
	if ok != 1 || rejected != 1 {
		t.Fatalf("expected exactly one success and one rejection, got ok=%d rejected=%d", ok, rejected)
	}

	value, _ := repo.GetResource(ctx, 1, model.ResourceAllocations)
	if value != testMaximums.Allocations {
		t.Fatalf("stored value must equal the maximum, got %d", value)
	}
}

func TestGetResourceFallbacks(t *testing.T) {
	repo, _ := newTestQuotaRepo(t)
	ctx := context.Background()

	value, err := repo.GetResource(ctx, 1, model.ResourceMemory)
	if err != nil {
		t.Fatalf("GetResource error: %v", err)
	}
	if value != testDefaults.Memory {
		t.Fatalf("expected default %d without a row, got %d", testDefaults.Memory, value)
	}

	if quota, _ := repo.GetByUser(ctx, 1); quota != nil {
		t.Fatalf("GetResource must not create a row")
	}

	value, err = repo.GetResource(ctx, 1, model.ResourceType("gpu_limit"))
	if err != nil || value != 0 {
		t.Fatalf("expected 0 for unknown resource, got %d / %v", value, err)
	}
}

func TestDeleteForUser(t *testing.T) {
	repo, _ := newTestQuotaRepo(t)
	ctx := context.Background()

	if err := repo.DeleteForUser(ctx, 1); !errors.Is(err, ErrQuotaNotFound) {
		t.Fatalf("expected ErrQuotaNotFound before creation, got %v", err)
	}

	if _, err := repo.EnsureForUser(ctx, 1); err != nil {
		t.Fatalf("EnsureForUser error: %v", err)
	}
	if err := repo.DeleteForUser(ctx, 1); err != nil {
		t.Fatalf("DeleteForUser error: %v", err)
	}

	quota, _ := repo.GetByUser(ctx, 1)
	if quota != nil {
		t.Fatalf("expected record gone after delete, got %+v", quota)
	}
}
