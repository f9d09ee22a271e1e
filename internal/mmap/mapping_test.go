package mmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapAnon_ReadWriteClose(t *testing.T) {
	m, err := MapAnon(4096)
	require.NoError(t, err)

	buf := m.Bytes()
	require.Len(t, buf, 4096)

	for _, b := range buf[:64] {
		assert.Equal(t, byte(0), b)
	}

	buf[0] = 0xAB
	buf[4095] = 0xCD
	assert.Equal(t, byte(0xAB), m.Bytes()[0])
	assert.Equal(t, byte(0xCD), m.Bytes()[4095])

	for _, p := range []AccessPattern{AccessSequential, AccessRandom, AccessDefault, AccessPattern(99)} {
		require.NoError(t, m.Advise(p))
	}
	assert.Equal(t, byte(0xAB), m.Bytes()[0])

	require.NoError(t, m.Close())
	assert.Nil(t, m.Bytes())
	assert.ErrorIs(t, m.Advise(AccessSequential), ErrClosed)

	// Idempotent
	require.NoError(t, m.Close())
}

func TestMapAnon_OddSize(t *testing.T) {
	m, err := MapAnon(100)
	require.NoError(t, err)
	defer m.Close()

	assert.Len(t, m.Bytes(), 100)
	assert.Equal(t, 100, cap(m.Bytes()))
}

func TestMapAnon_InvalidSize(t *testing.T) {
	_, err := MapAnon(0)
	assert.ErrorIs(t, err, ErrInvalidSize)

	_, err = MapAnon(-8)
	assert.ErrorIs(t, err, ErrInvalidSize)
}
