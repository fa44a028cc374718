package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrDefault(t *testing.T) {
	assert.Equal(t, "fallback", OrDefault("", "fallback"))
	assert.Equal(t, "value", OrDefault("value", "fallback"))
	assert.Equal(t, 42, OrDefault(0, 42))
	assert.Equal(t, 7, OrDefault(7, 42))
}

func TestRecoverPanicAsError(t *testing.T) {
	boom := errors.New("boom")

	err := func() (err error) {
		defer RecoverPanicAsError(&err)
		panic(boom)
	}()
	assert.ErrorIs(t, err, boom)

	err = func() (err error) {
		defer RecoverPanicAsError(&err)
		panic("not an error")
	}()
	assert.Error(t, err)

	err = func() (err error) {
		defer RecoverPanicAsError(&err)
		return nil
	}()
	assert.NoError(t, err)
}
