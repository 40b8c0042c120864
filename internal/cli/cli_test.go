package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeTestConfig writes a config with two extra fields and an absolute
// db_file inside dir.
func writeTestConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "evcat.yaml")
	body := fmt.Sprintf(`db_file: %s
overwrite_policy: version
extra_fields:
  - name: nobs
    type: integer
    default: "0"
  - name: region
    type: text
`, filepath.Join(dir, "catalog.sqlite"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// execute runs the evcat CLI with the given arguments, capturing stdout and
// stderr together.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	if stdin != "" {
		cmd.SetIn(strings.NewReader(stdin))
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// newCatalog creates a configured, initialized catalog and returns the
// config path.
func newCatalog(t *testing.T) string {
	t.Helper()
	cfgPath := writeTestConfig(t, t.TempDir())
	_, err := execute(t, "", "--config", cfgPath, "initdb")
	require.NoError(t, err)
	return cfgPath
}

const testEventsNDJSON = `{"evid":"ev1","time":"2024-05-01T12:00:00Z","lat":38.1,"lon":15.6,"depth":10,"mag":2.1,"mag_type":"ML","extras":{"nobs":"7","region":"messina strait"}}
{"evid":"ev2","time":"2024-05-01T12:05:00Z","lat":37.5,"lon":15,"depth":7.25}
`

// seedCatalog creates a catalog preloaded with two events.
func seedCatalog(t *testing.T) string {
	t.Helper()
	cfgPath := newCatalog(t)
	_, err := execute(t, testEventsNDJSON, "--config", cfgPath, "add", "-")
	require.NoError(t, err)
	return cfgPath
}
