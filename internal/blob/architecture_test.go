package blob_test

import (
	"testing"

	"cabincore/testutil"
)

func TestOnlyBlobPackageImportsInfra(t *testing.T) {
	testutil.AssertImportedOnlyBy(t, "cabincore/...", testutil.InfraBlobImport, testutil.BlobLayer,
		"other packages depend on blob.Store, not on a driver")
}
