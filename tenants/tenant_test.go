package tenants_test

import (
	"testing"

	"github.com/jrsteele09/go-tenant-access/internal/errors"
	"github.com/jrsteele09/go-tenant-access/tenants"
	"github.com/stretchr/testify/require"
)

func TestScopeCheck(t *testing.T) {
	scope := tenants.NewScope("3", " 4 ", "")

	require.NoError(t, scope.Check("3"))
	require.NoError(t, scope.Check("4"))
	require.ErrorIs(t, scope.Check("5"), errors.ErrTenantMismatch)
	require.ErrorIs(t, scope.Check(""), errors.ErrTenantRequired)
	require.Equal(t, []string{"3", "4"}, scope.IDs())
	require.False(t, scope.Empty())
}

func TestEmptyScopeRejectsEverything(t *testing.T) {
	scope := tenants.NewScope()
	require.True(t, scope.Empty())
	require.ErrorIs(t, scope.Check("1"), errors.ErrTenantMismatch)
}
