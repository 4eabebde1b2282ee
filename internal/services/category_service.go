package services

import (
	"context"
	"errors"
	"fmt"

	"spesa/internal/core"
	"spesa/internal/storage"
	"spesa/internal/validation"
)

// CategoryInput is the raw category form.
type CategoryInput struct {
	Name string `json:"name" validate:"notblank,max=100"`
}

type CategoryService struct {
	storage   *storage.SQLiteRepository
	reports   ReportInvalidator
	validator *validation.Validator
}

func NewCategoryService(storage *storage.SQLiteRepository, reports ReportInvalidator) *CategoryService {
	return &CategoryService{storage: storage, reports: reports, validator: validation.Default()}
}

// Create adds a category; a duplicate name for the same user is a validation error.
func (s *CategoryService) Create(ctx context.Context, userID int64, in CategoryInput) (core.Category, error) {
	if err := s.validator.Struct(in); err != nil {
		return core.Category{}, err
	}
	c, err := s.storage.CreateCategory(ctx, userID, in.Name)
	if errors.Is(err, core.ErrDuplicateCategory) {
		return core.Category{}, core.NewValidationError("name", "a category with this name already exists")
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}

// Delete removes the category together with its expenses.
func (s *CategoryService) Delete(ctx context.Context, userID, id int64) error {
	if err := s.storage.DeleteCategory(ctx, userID, id); err != nil {
		return err
	}
	if s.reports != nil {
		s.reports.Invalidate(userID)
	}
	return nil
}

func (s *CategoryService) List(ctx context.Context, userID int64) ([]core.Category, error) {
	return s.storage.ListCategories(ctx, userID)
}

// EnsureDefaults re-seeds the default categories for a user left with none.
func (s *CategoryService) EnsureDefaults(ctx context.Context, userID int64) error {
	_, err := s.storage.EnsureDefaultCategories(ctx, userID)
	return err
}
