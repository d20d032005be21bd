package cockroach

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"peerpractice-backend/internal/domain"
)

// ModuleRepository reads the course catalog's module reference table.
// Used only to validate that a requested module and exercise index exist.
type ModuleRepository struct {
	pool *pgxpool.Pool
}

// NewModuleRepository creates a new module repository
func NewModuleRepository(pool *pgxpool.Pool) *ModuleRepository {
	return &ModuleRepository{pool: pool}
}

// GetByID retrieves a practice module by ID
func (r *ModuleRepository) GetByID(ctx context.Context, moduleID uuid.UUID) (*domain.PracticeModule, error) {
	query := `
		SELECT module_id, title, exercise_count
		FROM practice_modules
		WHERE module_id = $1
	`

	module := &domain.PracticeModule{}
	err := r.pool.QueryRow(ctx, query, moduleID).Scan(
		&module.ModuleID,
		&module.Title,
		&module.ExerciseCount,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get practice module: %w", err)
	}

	return module, nil
}
