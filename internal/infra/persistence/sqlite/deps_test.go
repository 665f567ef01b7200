package sqlite

import (
	"testing"

	"keyledger/testutil"
)

func TestBackendDependsOnDomainOnly(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.DomainOnlyForbidden, "sqlite backend must only import pkg/domain")
}
