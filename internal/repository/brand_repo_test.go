package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/brandguard/brandguard/internal/domain"
)

func newBrandRepo(t *testing.T) BrandRepository {
	return NewBrandRepository(setupTestDB(t))
}

func TestBrandRepo_CreateDefaultsToActive(t *testing.T) {
	repo := newBrandRepo(t)
	ctx := context.Background()

	brand := &domain.Brand{Name: "WhatsApp", PackageName: "com.whatsapp"}
	require.NoError(t, repo.Create(ctx, brand))
	assert.NotZero(t, brand.ID)
	assert.Equal(t, domain.BrandStatusActive, brand.Status)
}

func TestBrandRepo_UniquePackage(t *testing.T) {
	repo := newBrandRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &domain.Brand{Name: "A", PackageName: "com.dup"}))
	err := repo.Create(ctx, &domain.Brand{Name: "B", PackageName: "com.dup"})
	assert.Error(t, err)
}

func TestBrandRepo_FindByPackage(t *testing.T) {
	repo := newBrandRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &domain.Brand{Name: "PayPal", PackageName: "com.paypal"}))

	brand, err := repo.FindByPackage(ctx, "com.paypal")
	require.NoError(t, err)
	assert.Equal(t, "PayPal", brand.Name)

	_, err = repo.FindByPackage(ctx, "com.nope")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestBrandRepo_ListActiveExcludesDisabled(t *testing.T) {
	repo := newBrandRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &domain.Brand{Name: "Active", PackageName: "com.active"}))
	disabled := &domain.Brand{Name: "Disabled", PackageName: "com.disabled", Status: domain.BrandStatusDisabled}
	require.NoError(t, repo.Create(ctx, disabled))

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Active", active[0].Name)
}

func TestBrandRepo_Update(t *testing.T) {
	repo := newBrandRepo(t)
	ctx := context.Background()

	brand := &domain.Brand{Name: "Old", PackageName: "com.old"}
	require.NoError(t, repo.Create(ctx, brand))
	created := brand.UpdatedAt

	time.Sleep(5 * time.Millisecond)
	brand.Name = "New"
	require.NoError(t, repo.Update(ctx, brand))

	found, err := repo.FindByID(ctx, brand.ID)
	require.NoError(t, err)
	assert.Equal(t, "New", found.Name)
	assert.True(t, found.UpdatedAt.After(created))
}

func TestBrandRepo_Delete(t *testing.T) {
	repo := newBrandRepo(t)
	ctx := context.Background()

	brand := &domain.Brand{Name: "Gone", PackageName: "com.gone"}
	require.NoError(t, repo.Create(ctx, brand))
	require.NoError(t, repo.Delete(ctx, brand.ID))

	_, err := repo.FindByID(ctx, brand.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestReportRepo_SaveUpsert(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReportRepository(db)
	ctx := context.Background()

	now := time.Now().UTC()
	first := &domain.TakedownReport{ScanID: "scan-1", FilePath: "/a.pdf", FakeScore: 80, GeneratedAt: &now}
	require.NoError(t, repo.Save(ctx, first))

	second := &domain.TakedownReport{ScanID: "scan-1", FilePath: "/b.pdf", FakeScore: 85, GeneratedAt: &now}
	require.NoError(t, repo.Save(ctx, second))

	found, err := repo.FindByScanID(ctx, "scan-1")
	require.NoError(t, err)
	assert.Equal(t, "/b.pdf", found.FilePath)
	assert.Equal(t, first.ID, found.ID)

	var count int64
	db.Model(&domain.TakedownReport{}).Count(&count)
	assert.Equal(t, int64(1), count)
}
