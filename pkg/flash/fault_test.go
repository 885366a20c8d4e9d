package flash

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFaultDeviceBudget(t *testing.T) {
	ctx := context.Background()
	ctrl := newController(t)
	dev := NewFaultDevice(ctrl, 2, false)

	require.NoError(t, dev.Program(0, []byte{1, 1, 1, 1}))
	require.NoError(t, dev.Wait(ctx))
	require.NoError(t, dev.Erase(2))
	require.NoError(t, dev.Wait(ctx))
	assert.False(t, dev.Tripped())
	assert.Equal(t, 2, dev.Issued())

	assert.ErrorIs(t, dev.Program(4, []byte{2, 2, 2, 2}), ErrPowerLoss)
	assert.True(t, dev.Tripped())
	assert.ErrorIs(t, dev.Erase(0), ErrPowerLoss, "power stays off")

	assert.Equal(t, []byte{1, 1, 1, 1}, read(t, dev, 0, 4))
	assert.True(t, IsErased(read(t, dev, 4, 4)))
	assert.Equal(t, 2, dev.Issued())
}

func TestFaultDeviceUnlimited(t *testing.T) {
	ctx := context.Background()
	dev := NewFaultDevice(newController(t), -1, true)

	for i := 0; i < 10; i++ {
		require.NoError(t, dev.Program(uint32(i*4), []byte{0, 0, 0, 0}))
		require.NoError(t, dev.Wait(ctx))
	}
	assert.False(t, dev.Tripped())
	assert.Equal(t, 10, dev.Issued())
}

func TestFaultDeviceTornProgram(t *testing.T) {
	ctrl := newController(t)
	dev := NewFaultDevice(ctrl, 0, true)

	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	assert.ErrorIs(t, dev.Program(0, data), ErrPowerLoss)

	// half rounded down to a word lands, the rest stays erased
	assert.Equal(t, []byte{1, 2, 3, 4}, read(t, ctrl, 0, 4))
	assert.True(t, IsErased(read(t, ctrl, 4, 8)))

	// only the tripping program tears
	assert.ErrorIs(t, dev.Program(16, data), ErrPowerLoss)
	assert.True(t, IsErased(read(t, ctrl, 16, 12)))
}
