package gen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietwire/mtmitm/internal/tl"
)

func TestRegisterPopulatesSampleCombinators(t *testing.T) {
	reg := tl.NewRegistry()
	Register(reg)

	assert.Equal(t, 10, reg.Len())

	user, ok := reg.Lookup(0x215c4438)
	require.True(t, ok)
	assert.Equal(t, "user", user.Name)
	require.Len(t, user.Fields, 7)
	assert.True(t, user.Fields[0].IsFlagsWord)
	assert.Equal(t, tl.KindFlagTrue, user.Fields[1].Type.Kind)

	updates, ok := reg.Lookup(0x74ae4240)
	require.True(t, ok)
	assert.Equal(t, tl.KindVector, updates.Fields[0].Type.Kind)
	assert.Equal(t, tl.KindObject, updates.Fields[0].Type.Elem.Kind)
}
