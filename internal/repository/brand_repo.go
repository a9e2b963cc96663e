package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/brandguard/brandguard/internal/domain"
)

type BrandRepository interface {
	Create(ctx context.Context, brand *domain.Brand) error
	Update(ctx context.Context, brand *domain.Brand) error
	FindByID(ctx context.Context, id uint) (*domain.Brand, error)
	FindByPackage(ctx context.Context, packageName string) (*domain.Brand, error)
	List(ctx context.Context) ([]*domain.Brand, error)
	ListActive(ctx context.Context) ([]*domain.Brand, error)
	Delete(ctx context.Context, id uint) error
}

type brandRepo struct {
	db *gorm.DB
}

func NewBrandRepository(db *gorm.DB) BrandRepository {
	return &brandRepo{db: db}
}

func (r *brandRepo) Create(ctx context.Context, brand *domain.Brand) error {
	now := time.Now().UTC()
	brand.CreatedAt = now
	brand.UpdatedAt = now
	if brand.Status == "" {
		brand.Status = domain.BrandStatusActive
	}
	return r.db.WithContext(ctx).Create(brand).Error
}

func (r *brandRepo) Update(ctx context.Context, brand *domain.Brand) error {
	brand.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Save(brand).Error
}

func (r *brandRepo) FindByID(ctx context.Context, id uint) (*domain.Brand, error) {
	var brand domain.Brand
	if err := r.db.WithContext(ctx).First(&brand, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &brand, nil
}

func (r *brandRepo) FindByPackage(ctx context.Context, packageName string) (*domain.Brand, error) {
	var brand domain.Brand
	if err := r.db.WithContext(ctx).First(&brand, "package_name = ?", packageName).Error; err != nil {
		return nil, err
	}
	return &brand, nil
}

func (r *brandRepo) List(ctx context.Context) ([]*domain.Brand, error) {
	var brands []*domain.Brand
	err := r.db.WithContext(ctx).Order("name ASC").Find(&brands).Error
	return brands, err
}

func (r *brandRepo) ListActive(ctx context.Context) ([]*domain.Brand, error) {
	var brands []*domain.Brand
	err := r.db.WithContext(ctx).
		Where("status = ?", domain.BrandStatusActive).
		Order("name ASC").
		Find(&brands).Error
	return brands, err
}

func (r *brandRepo) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&domain.Brand{}, "id = ?", id).Error
}
