package testpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tbsa/internal/harness"
)

func TestRegister(t *testing.T) {
	reg := harness.NewRegistry()
	require.NoError(t, Register(reg))

	keys := make([]string, 0, reg.Len())
	for _, tc := range reg.All() {
		keys = append(keys, tc.Identity().Key())
	}
	assert.Equal(t, []string{"d007", "p001"}, keys)

	d007, ok := reg.Lookup("d007")
	require.True(t, ok)
	assert.Equal(t, "R230_TBSA_DEBUG", d007.Identity().RefTag)

	p001, ok := reg.Lookup("p001")
	require.True(t, ok)
	assert.Equal(t, "R190_TBSA_INFRA", p001.Identity().RefTag)
}

func TestRegister_Twice(t *testing.T) {
	reg := harness.NewRegistry()
	require.NoError(t, Register(reg))
	assert.ErrorIs(t, Register(reg), harness.ErrDuplicateTest)
}
