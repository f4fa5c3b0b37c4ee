package persistence_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dukex/custodian/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("not found errors are recognized", func(t *testing.T) {
		for _, sentinel := range []error{
			persistence.ErrDefinitionNotFound,
			persistence.ErrInstanceNotFound,
			persistence.ErrStepNotFound,
			persistence.ErrApprovalNotFound,
			persistence.ErrAssetNotFound,
			persistence.ErrLocationNotFound,
		} {
			err := persistence.NewRecordError("GetByID", "record", "id-1", sentinel)

			assert.True(t, persistence.IsNotFound(err), sentinel.Error())
			assert.True(t, errors.Is(err, sentinel))
		}
	})

	t.Run("status conflict survives wrapping", func(t *testing.T) {
		err := fmt.Errorf("failed to cancel: %w",
			persistence.NewRecordError("Transition", "instance", "inst-1", persistence.ErrStatusConflict))

		assert.True(t, persistence.IsStatusConflict(err))
		assert.False(t, persistence.IsNotFound(err))
	})

	t.Run("record error contains context", func(t *testing.T) {
		err := persistence.NewRecordError("Transition", "instance", "inst-123", persistence.ErrStatusConflict)

		assert.Contains(t, err.Error(), "Transition")
		assert.Contains(t, err.Error(), "instance inst-123")
		assert.Contains(t, err.Error(), "status changed concurrently")
	})
}
