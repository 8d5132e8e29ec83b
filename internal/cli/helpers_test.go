package cli

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/tally/internal/testutil"
)

// cliEnv pins every TALLY_* setting so the host environment cannot leak
// into a test, and returns a fresh database path.
func cliEnv(t *testing.T) string {
	t.Helper()
	t.Setenv("TALLY_KEY", hex.EncodeToString(testutil.Key()))
	t.Setenv("TALLY_AUTHOR", testutil.TestAuthor)
	t.Setenv("TALLY_DEVICE", testutil.TestDevice)
	t.Setenv("TALLY_LOG_LEVEL", "error")
	t.Setenv("TALLY_HTTP_ADDR", "127.0.0.1:7433")
	t.Setenv("TALLY_CORS_ORIGINS", "http://localhost:5173")
	t.Setenv("TALLY_EXPORT_WORKERS", "2")
	db := filepath.Join(t.TempDir(), "history.db")
	t.Setenv("TALLY_DB", db)
	return db
}

type cliRun struct {
	stdout string
	stderr string
	err    error
}

// runCLI executes the root command with args against the test environment.
func runCLI(t *testing.T, args ...string) cliRun {
	t.Helper()
	return runCLIContext(t, context.Background(), args...)
}

func runCLIContext(t *testing.T, ctx context.Context, args ...string) cliRun {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	noEnv := filepath.Join(t.TempDir(), "missing.env")
	cmd.SetArgs(append([]string{"--env-file", noEnv}, args...))
	err := cmd.ExecuteContext(ctx)
	return cliRun{stdout: out.String(), stderr: errOut.String(), err: err}
}

// decodeData unmarshals the data field of a JSON CLI response.
func decodeData(t *testing.T, r cliRun, v any) {
	t.Helper()
	require.NoError(t, r.err, "stderr: %s", r.stderr)
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &resp), r.stdout)
	require.Equal(t, "ok", resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

type commitJSON struct {
	Hash       string `json:"hash"`
	Seq        int64  `json:"seq"`
	Message    string `json:"message"`
	Author     string `json:"author"`
	ParentHash string `json:"parentHash"`
	Device     string `json:"deviceFingerprint"`
}

type changeJSON struct {
	CommitHash  string `json:"commitHash"`
	EntityType  string `json:"entityType"`
	EntityID    string `json:"entityId"`
	ChangeType  string `json:"changeType"`
	Description string `json:"description"`
}

// trackCash records a cash change and returns the commit.
func trackCash(t *testing.T, from, to string, extra ...string) commitJSON {
	t.Helper()
	var c commitJSON
	args := append([]string{"track", "cash", "--from", from, "--to", to, "--format", "json"}, extra...)
	decodeData(t, runCLI(t, args...), &c)
	return c
}
