package domain

import "github.com/google/uuid"

// PracticeModule is a read-only reference row from the course catalog.
// Only existence and exercise count matter here; content is owned by
// the course service.
type PracticeModule struct {
	ModuleID      uuid.UUID `json:"module_id" db:"module_id"`
	Title         string    `json:"title" db:"title"`
	ExerciseCount int       `json:"exercise_count" db:"exercise_count"`
}

// HasExercise reports whether the exercise index exists in the module
func (m *PracticeModule) HasExercise(index int) bool {
	return index >= 0 && index < m.ExerciseCount
}
