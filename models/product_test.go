package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteOffReportsReleasedReservation(t *testing.T) {
	inv := Inventory{ProductId: "P", OnHand: 10, Reserved: 3, Available: 7}
	removed, released := inv.WriteOff(5)
	assert.Equal(t, 5.0, removed)
	assert.Zero(t, released)
	assert.Equal(t, 3.0, inv.Reserved)

	removed, released = inv.WriteOff(4)
	assert.Equal(t, 4.0, removed)
	assert.Equal(t, 2.0, released)
	assert.Equal(t, 1.0, inv.OnHand)
	assert.Equal(t, 1.0, inv.Reserved)
	assert.Zero(t, inv.Available)

	removed, released = inv.WriteOff(9)
	assert.Equal(t, 1.0, removed)
	assert.Equal(t, 1.0, released)
	assert.Zero(t, inv.OnHand)
	assert.Zero(t, inv.Reserved)
}
