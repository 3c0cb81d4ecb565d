package secure_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/satchel/internal/secure"
)

func TestBytes_DestroyZeroes(t *testing.T) {
	t.Parallel()

	b := secure.NewBytes(32)
	data := b.Bytes()
	for i := range data {
		data[i] = byte(i + 1)
	}
	require.Equal(t, 32, b.Len())

	b.Destroy()

	assert.Nil(t, b.Bytes())
	assert.Equal(t, 0, b.Len())
	assert.False(t, b.IsLocked())
	for i := range data {
		assert.Equal(t, byte(0), data[i], "byte %d not zeroed", i)
	}
}

func TestBytes_DoubleDestroy(t *testing.T) {
	t.Parallel()

	b := secure.NewBytes(16)
	b.Destroy()
	assert.NotPanics(t, b.Destroy)
}

func TestBytes_ZeroSize(t *testing.T) {
	t.Parallel()

	b := secure.NewBytes(0)
	defer b.Destroy()
	assert.False(t, b.IsLocked())
	assert.Equal(t, 0, b.Len())
}

func TestBytesFrom_ZeroesSource(t *testing.T) {
	t.Parallel()

	src := []byte{1, 2, 3, 4}
	b := secure.BytesFrom(src)
	defer b.Destroy()

	assert.Equal(t, []byte{1, 2, 3, 4}, b.Bytes())
	assert.Equal(t, []byte{0, 0, 0, 0}, src)
}

func TestRandomBytes(t *testing.T) {
	t.Parallel()

	a, err := secure.RandomBytes(16)
	require.NoError(t, err)
	b, err := secure.RandomBytes(16)
	require.NoError(t, err)

	assert.Len(t, a, 16)
	assert.NotEqual(t, a, b)
}
