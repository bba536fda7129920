package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptional(t *testing.T) {
	assert.Nil(t, Optional(""))
	assert.Nil(t, Optional("   "))
	assert.Equal(t, "Main Bazaar", *Optional(" Main Bazaar "))
}

func TestDeref(t *testing.T) {
	assert.Equal(t, "", Deref[string](nil))
	assert.Equal(t, 4, Deref(Ptr(4)))
}
