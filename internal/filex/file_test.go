package filex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureParentDir_CreatesMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "finsync.db")
	require.NoError(t, EnsureParentDir(path))

	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestEnsureParentDir_ExistingIsFine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "finsync.db")
	require.NoError(t, EnsureParentDir(path))
	require.NoError(t, EnsureParentDir(path))
}

func TestEnsureParentDir_RelativeFileName(t *testing.T) {
	require.NoError(t, EnsureParentDir("finsync.db"))
}
