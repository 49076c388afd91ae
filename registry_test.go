package flatwire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(oneInt32Desc))

	d, ok := r.Lookup("OneInt32")
	require.True(t, ok)
	assert.Same(t, oneInt32Desc, d)

	_, ok = r.Lookup("Nope")
	assert.False(t, ok)
}

func TestRegistryRejectsDuplicateName(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(oneInt32Desc))

	clash := MustTypeDescriptor("OneInt32", []FieldDescriptor{
		Int64Field("y", 0),
	})
	assert.Error(t, r.Register(clash))

	// The original registration survives the collision.
	d, ok := r.Lookup("OneInt32")
	require.True(t, ok)
	assert.Same(t, oneInt32Desc, d)
}

func TestMustRegisterPanicsOnDuplicate(t *testing.T) {
	r := NewRegistry().MustRegister(oneInt32Desc)
	assert.Panics(t, func() { r.MustRegister(oneInt32Desc) })
}
