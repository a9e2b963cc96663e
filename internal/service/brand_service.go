package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/brandguard/brandguard/internal/domain"
	"github.com/brandguard/brandguard/internal/repository"
	"github.com/brandguard/brandguard/internal/similarity"
)

var (
	ErrBrandNotFound    = errors.New("brand not found")
	ErrBrandExists      = errors.New("a brand with this package name already exists")
	ErrBrandInvalid     = errors.New("brand requires a name and a package name")
	ErrBrandIconInvalid = errors.New("brand icon could not be decoded")
)

// BrandInput carries the fields accepted when registering or updating a
// brand. IconPath points at an already-stored reference icon; its perceptual
// hash is computed here so lookups never re-decode the image.
type BrandInput struct {
	Name        string   `json:"name"`
	PackageName string   `json:"package_name"`
	CertSHA256  string   `json:"cert_sha256"`
	IconPath    string   `json:"icon_path"`
	Permissions []string `json:"permissions"`
	Status      string   `json:"status"`
}

// BrandService manages the known-brand registry.
type BrandService struct {
	brandRepo repository.BrandRepository
	logger    *logrus.Logger
}

func NewBrandService(brandRepo repository.BrandRepository, logger *logrus.Logger) *BrandService {
	return &BrandService{brandRepo: brandRepo, logger: logger}
}

func (s *BrandService) RegisterBrand(ctx context.Context, input *BrandInput) (*domain.Brand, error) {
	if input.Name == "" || input.PackageName == "" {
		return nil, ErrBrandInvalid
	}

	if _, err := s.brandRepo.FindByPackage(ctx, input.PackageName); err == nil {
		return nil, ErrBrandExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	brand := &domain.Brand{
		Name:        input.Name,
		PackageName: input.PackageName,
		CertSHA256:  input.CertSHA256,
		IconPath:    input.IconPath,
		Status:      domain.BrandStatus(input.Status),
	}

	if err := s.applyIconAndPermissions(brand, input); err != nil {
		return nil, err
	}

	if err := s.brandRepo.Create(ctx, brand); err != nil {
		return nil, fmt.Errorf("failed to create brand: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"brand_id": brand.ID,
		"package":  brand.PackageName,
	}).Info("Brand registered")

	return brand, nil
}

func (s *BrandService) UpdateBrand(ctx context.Context, id uint, input *BrandInput) (*domain.Brand, error) {
	brand, err := s.brandRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBrandNotFound
		}
		return nil, err
	}

	if input.Name != "" {
		brand.Name = input.Name
	}
	if input.PackageName != "" && input.PackageName != brand.PackageName {
		if _, err := s.brandRepo.FindByPackage(ctx, input.PackageName); err == nil {
			return nil, ErrBrandExists
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		brand.PackageName = input.PackageName
	}
	if input.CertSHA256 != "" {
		brand.CertSHA256 = input.CertSHA256
	}
	if input.Status != "" {
		brand.Status = domain.BrandStatus(input.Status)
	}
	if input.IconPath != "" {
		brand.IconPath = input.IconPath
	}
	if err := s.applyIconAndPermissions(brand, input); err != nil {
		return nil, err
	}

	if err := s.brandRepo.Update(ctx, brand); err != nil {
		return nil, fmt.Errorf("failed to update brand: %w", err)
	}
	return brand, nil
}

func (s *BrandService) GetBrand(ctx context.Context, id uint) (*domain.Brand, error) {
	brand, err := s.brandRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBrandNotFound
		}
		return nil, err
	}
	return brand, nil
}

func (s *BrandService) ListBrands(ctx context.Context) ([]*domain.Brand, error) {
	return s.brandRepo.List(ctx)
}

func (s *BrandService) DeleteBrand(ctx context.Context, id uint) error {
	if _, err := s.brandRepo.FindByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrBrandNotFound
		}
		return err
	}
	return s.brandRepo.Delete(ctx, id)
}

// applyIconAndPermissions computes the icon perceptual hash and encodes the
// permission list. Both are optional inputs.
func (s *BrandService) applyIconAndPermissions(brand *domain.Brand, input *BrandInput) error {
	if input.IconPath != "" {
		hash, err := similarity.HashImageFile(input.IconPath)
		if err != nil {
			s.logger.WithError(err).WithField("icon_path", input.IconPath).Warn("Brand icon hashing failed")
			return ErrBrandIconInvalid
		}
		brand.IconPHash = hash
	}

	if input.Permissions != nil {
		encoded, err := json.Marshal(input.Permissions)
		if err != nil {
			return fmt.Errorf("failed to encode permissions: %w", err)
		}
		brand.Permissions = string(encoded)
	}
	return nil
}
