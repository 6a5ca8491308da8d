package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/medixcare/pharmacy-api/internal/model"
	"github.com/medixcare/pharmacy-api/internal/repository"
)

type catalogRepository struct {
	BaseRepository
}

func NewCatalogRepository(base BaseRepository) repository.CatalogRepository {
	return &catalogRepository{base}
}

// Search does a fuzzy lookup by substring on name or brand.
func (r *catalogRepository) Search(ctx context.Context, nameFragment string) ([]*model.CatalogMedicine, error) {
	query := `
		SELECT * FROM catalog_medicines
		WHERE deleted_at IS NULL
		AND (name ILIKE $1 OR brand ILIKE $1 OR generic_name ILIKE $1)
		ORDER BY name ASC
		LIMIT 25
	`
	var medicines []*model.CatalogMedicine
	if err := r.GetDB().SelectContext(ctx, &medicines, query, "%"+nameFragment+"%"); err != nil {
		return nil, fmt.Errorf("failed to search catalog: %w", err)
	}
	return medicines, nil
}

func (r *catalogRepository) Get(ctx context.Context, id uuid.UUID) (*model.CatalogMedicine, error) {
	query := `
		SELECT * FROM catalog_medicines
		WHERE id = $1 AND deleted_at IS NULL
	`
	var medicine model.CatalogMedicine
	if err := r.GetDB().GetContext(ctx, &medicine, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("catalog medicine not found")
		}
		return nil, fmt.Errorf("failed to get catalog medicine: %w", err)
	}
	return &medicine, nil
}
