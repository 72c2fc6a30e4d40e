package utils

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeekdaysSkipsWeekends(t *testing.T) {
	// Friday 2024-03-08 through Tuesday 2024-03-12
	from := time.Date(2024, 3, 8, 15, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 12, 1, 0, 0, 0, time.UTC)
	days := Weekdays(from, to)
	require.Len(t, days, 3)
	assert.Equal(t, "2024-03-08", DateKey(days[0]))
	assert.Equal(t, "2024-03-11", DateKey(days[1]))
	assert.Equal(t, "2024-03-12", DateKey(days[2]))
}

func TestRoundAndClamp(t *testing.T) {
	assert.Equal(t, 2.35, Round2(2.349))
	assert.Equal(t, -1.5, Round2(-1.499))
	assert.Equal(t, 0.0, Clamp(-3, 0, 1))
	assert.Equal(t, 1.0, Clamp(7, 0, 1))
	assert.Equal(t, 0.4, Clamp(0.4, 0, 1))
}

func TestUniqueStringsSorts(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, UniqueStrings([]string{"c", "a", "c", "b", "a"}))
	assert.Empty(t, UniqueStrings(nil))
}

func TestErrorClassesSurviveWrapping(t *testing.T) {
	v := fmt.Errorf("reserve: %w", NewValidationError(CodeInsufficientInventory, "need %d", 5))
	assert.True(t, IsValidation(v))
	assert.False(t, IsNotFound(v))
	assert.Contains(t, v.Error(), "InsufficientInventory: need 5")

	nf := fmt.Errorf("load: %w", NewNotFoundError("orders", "O1"))
	assert.True(t, IsNotFound(nf))
	assert.ErrorIs(t, nf, ErrorRecordNotFound)

	tx := &TransactionError{Op: "commit", Err: context.DeadlineExceeded}
	assert.True(t, IsTransaction(tx))
	assert.ErrorIs(t, tx, context.DeadlineExceeded)

	assert.True(t, IsComputation(&ComputationError{Func: "Pearson", Reason: "length mismatch"}))
}

func TestValidateStructListsFields(t *testing.T) {
	type payload struct {
		Id       string  `validate:"required"`
		Quantity float64 `validate:"gt=0"`
	}
	require.NoError(t, ValidateStruct(payload{Id: "x", Quantity: 1}))

	err := ValidateStruct(payload{})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Equal(t, "InvalidPayload: payload.Id=required, payload.Quantity=gt", err.Error())
}

func TestActorFromContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "system", ActorFromContext(ctx))
	ctx = SetUserIdInContext(ctx, "u-7")
	assert.Equal(t, "u-7", ActorFromContext(ctx))

	ctx = SetCorrelationIdInContext(ctx, "msg-1")
	cid, ok := GetCorrelationIdFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "msg-1", cid)
	_, ok = GetEventIdFromContext(ctx)
	assert.False(t, ok)
}
