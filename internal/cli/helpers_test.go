package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// cliEnv is a temporary replica setup: a config file, a database path
// and a directory export with one subdirectory per entity type.
type cliEnv struct {
	t          *testing.T
	dir        string
	configPath string
	exportDir  string
	dbPath     string
}

func newCLIEnv(t *testing.T, types ...string) *cliEnv {
	t.Helper()
	if len(types) == 0 {
		types = []string{"users", "groups"}
	}

	dir := t.TempDir()
	env := &cliEnv{
		t:          t,
		dir:        dir,
		configPath: filepath.Join(dir, "replica.yaml"),
		exportDir:  filepath.Join(dir, "export"),
		dbPath:     filepath.Join(dir, "replica.db"),
	}

	for _, typ := range types {
		require.NoError(t, os.MkdirAll(filepath.Join(env.exportDir, typ), 0o755))
	}

	list := ""
	for i, typ := range types {
		if i > 0 {
			list += ", "
		}
		list += typ
	}
	config := fmt.Sprintf(`database: replica.db
logging:
  level: error
remote:
  kind: dir
  dir: export
sync:
  entity_types: [%s]
  concurrency: 2
`, list)
	require.NoError(t, os.WriteFile(env.configPath, []byte(config), 0o644))

	return env
}

// put writes entity id of typ with lastUpdated epoch+hour.
func (e *cliEnv) put(typ, id string, hour int) {
	e.t.Helper()
	ts := epoch.Add(time.Duration(hour) * time.Hour).Format(time.RFC3339)
	content := fmt.Sprintf(`{"id": %q, "lastUpdated": %q, "name": %q}`, id, ts, id)
	path := filepath.Join(e.exportDir, typ, id+".json")
	require.NoError(e.t, os.WriteFile(path, []byte(content), 0o644))
}

func (e *cliEnv) remove(typ, id string) {
	e.t.Helper()
	require.NoError(e.t, os.Remove(filepath.Join(e.exportDir, typ, id+".json")))
}

// run executes the CLI against this environment.
func (e *cliEnv) run(args ...string) (stdout, stderr string, code int) {
	return e.runContext(context.Background(), args...)
}

func (e *cliEnv) runContext(ctx context.Context, args ...string) (stdout, stderr string, code int) {
	var out, errOut bytes.Buffer
	code = Execute(ctx, append([]string{"--config", e.configPath}, args...), &out, &errOut)
	return out.String(), errOut.String(), code
}

// writeConfig replaces the environment's config file.
func (e *cliEnv) writeConfig(content string) {
	e.t.Helper()
	require.NoError(e.t, os.WriteFile(e.configPath, []byte(content), 0o644))
}
