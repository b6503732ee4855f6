package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// Fixture reads testdata/<name> next to this file and decodes it into target,
// as YAML or JSON by extension. It returns the raw bytes.
func Fixture(t testing.TB, name string, target any) []byte {
	t.Helper()
	_, currentFile, _, _ := runtime.Caller(0)
	dir := filepath.Join(filepath.Dir(currentFile), "testdata")

	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)

	if target != nil {
		switch strings.ToLower(filepath.Ext(name)) {
		case ".yaml", ".yml":
			require.NoError(t, yaml.Unmarshal(data, target))
		default:
			require.NoError(t, json.Unmarshal(data, target))
		}
	}
	return data
}

// FixturePath returns the absolute path of testdata/<name>.
func FixturePath(name string) string {
	_, currentFile, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(currentFile), "testdata", name)
}
