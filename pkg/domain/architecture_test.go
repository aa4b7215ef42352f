package domain_test

import (
	"testing"

	"cabincore/testutil"
)

func TestDomainHasNoInternalDependencies(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden, "the domain model is shared by every layer")
	testutil.AssertNoTransitiveDependency(t, "cabincore/pkg/domain", testutil.InternalImportForbidden, "the domain model is shared by every layer")
}
