package postgres

import (
	"context"
	"fmt"

	"github.com/custodia-labs/sercha-catalog/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.QualityStore = (*QualityStore)(nil)

// TestCaseFailed is the stored status of a failing test case.
const TestCaseFailed = "Failed"

// QualityStore answers data-quality lookups from test_case_results.
type QualityStore struct {
	db *DB
}

// NewQualityStore creates a new QualityStore
func NewQualityStore(db *DB) *QualityStore {
	return &QualityStore{db: db}
}

// HasTestCaseFailure reports whether any test case on the entity has failed.
func (s *QualityStore) HasTestCaseFailure(ctx context.Context, fqn string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM test_case_results
			WHERE entity_fqn = $1 AND status = $2
		)
	`

	var failed bool
	if err := s.db.QueryRowContext(ctx, query, fqn, TestCaseFailed).Scan(&failed); err != nil {
		return false, fmt.Errorf("query test cases of %s: %w", fqn, err)
	}
	return failed, nil
}
