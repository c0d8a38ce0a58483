package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestSortedUniqueIDs(t *testing.T) {
	assert.Equal(t, []int64{1, 3, 7}, SortedUniqueIDs([]int64{7, 3, 1, 3, 7}))
	assert.Empty(t, SortedUniqueIDs(nil))
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"lock not available", &pq.Error{Code: pqLockNotAvailable}, ErrLockTimeout},
		{"deadlock", &pq.Error{Code: pqDeadlockDetected}, ErrLockTimeout},
		{"serialization", &pq.Error{Code: pqSerializationFailure}, ErrLockTimeout},
		{"unique violation", &pq.Error{Code: pqUniqueViolation, Constraint: "orders_idempotency_key_key"}, ErrDuplicateKey},
		{"foreign key", &pq.Error{Code: pqForeignKeyViolation}, ErrNotFound},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), ErrLockTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classifyError(tt.err), tt.want)
		})
	}

	assert.NoError(t, classifyError(nil))

	other := errors.New("boom")
	assert.Equal(t, other, classifyError(other))
}
