package cli

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tally/internal/model"
	"github.com/roach88/tally/internal/store"
	"github.com/roach88/tally/internal/testutil"
)

func TestVerify(t *testing.T) {
	db := cliEnv(t)
	trackCash(t, "0", "100.00")
	c2 := trackCash(t, "100.00", "150.00")

	r := runCLI(t, "verify")
	require.NoError(t, r.err)
	assert.Equal(t, "\u2713 History intact (2 commits)\n", r.stdout)

	st, err := store.Open(db)
	require.NoError(t, err)
	_, err = st.DB().Exec(`UPDATE commits SET author = 'Mallory' WHERE hash = ?`, c2.Hash)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	r = runCLI(t, "verify")
	require.Error(t, r.err)
	assert.Equal(t, ExitFailure, GetExitCode(r.err))
	assert.Contains(t, r.stdout, "History invalid at seq 2")
	assert.Contains(t, r.stdout, "hash mismatch")

	var report struct {
		Valid            bool   `json:"valid"`
		FirstInvalidHash string `json:"firstInvalidHash"`
		Checked          int    `json:"checked"`
	}
	r = runCLI(t, "verify", "--format", "json")
	require.Error(t, r.err)
	var resp struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &resp))
	require.NoError(t, json.Unmarshal(resp.Data, &report))
	assert.False(t, report.Valid)
	assert.Equal(t, c2.Hash, report.FirstInvalidHash)
	assert.Equal(t, 1, report.Checked)
}

type restoreJSON struct {
	Source  commitJSON   `json:"source"`
	Commit  *commitJSON  `json:"commit"`
	Changes []changeJSON `json:"changes"`
}

func TestRestore(t *testing.T) {
	cliEnv(t)
	c1 := trackCash(t, "100.00", "250.00")
	c2 := trackCash(t, "250.00", "75.50")

	var res restoreJSON
	decodeData(t, runCLI(t, "restore", c1.Hash[:10], "--format", "json"), &res)
	assert.Equal(t, c1.Hash, res.Source.Hash)
	require.NotNil(t, res.Commit)
	assert.Equal(t, "Restored unassigned cash main to commit "+model.ShortHash(c1.Hash), res.Commit.Message)
	assert.Equal(t, c2.Hash, res.Commit.ParentHash)
	require.Len(t, res.Changes, 1)
	assert.Equal(t, "modify", res.Changes[0].ChangeType)

	r := runCLI(t, "restore", c1.Hash)
	require.NoError(t, r.err)
	assert.Equal(t, "Nothing to restore: entities already match commit "+model.ShortHash(c1.Hash)+"\n", r.stdout)

	r = runCLI(t, "verify")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "(3 commits)")
}

func TestRestore_Failures(t *testing.T) {
	cliEnv(t)
	c1 := trackCash(t, "0", "1.00")

	r := runCLI(t, "restore", "ffffffff")
	require.Error(t, r.err)
	assert.Equal(t, ExitCommandError, GetExitCode(r.err))

	t.Setenv("TALLY_KEY", hex.EncodeToString(testutil.OtherKey()))
	r = runCLI(t, "restore", c1.Hash)
	require.Error(t, r.err)
	assert.Equal(t, ExitFailure, GetExitCode(r.err))
	assert.Contains(t, r.err.Error(), "DecryptionError")
}

func TestExport(t *testing.T) {
	cliEnv(t)
	trackCash(t, "0", "100.00")
	runCLI(t, "track", "debt", "add", "debt-car", "--name", "Car Loan", "--balance", "100")

	out := filepath.Join(t.TempDir(), "history.json")
	r := runCLI(t, "export", "--out", out, "--snapshots")
	require.NoError(t, r.err)
	assert.Equal(t, "Exported 2 commits to "+out+"\n", r.stdout)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	type bundleJSON struct {
		ExportID string `json:"exportId"`
		Version  string `json:"version"`
		Events   []struct {
			Commit   commitJSON      `json:"commit"`
			Changes  []changeJSON    `json:"changes"`
			Snapshot json.RawMessage `json:"snapshot"`
		} `json:"events"`
		Settings struct {
			IncludeSnapshots bool `json:"includeSnapshots"`
			CommitCount      int  `json:"commitCount"`
		} `json:"settings"`
	}
	var bundle bundleJSON
	require.NoError(t, json.Unmarshal(data, &bundle))
	assert.NotEmpty(t, bundle.ExportID)
	assert.Equal(t, model.ExportVersion, bundle.Version)
	require.Len(t, bundle.Events, 2)
	assert.Equal(t, "Updated unassigned cash from $0.00 to $100.00", bundle.Events[0].Commit.Message)
	assert.Equal(t, "Added debt: Car Loan", bundle.Events[1].Commit.Message)
	assert.NotEmpty(t, bundle.Events[1].Snapshot)
	assert.True(t, bundle.Settings.IncludeSnapshots)
	assert.Equal(t, 2, bundle.Settings.CommitCount)

	// Stdout export is the bare bundle
	r = runCLI(t, "export", "--entity", "debt")
	require.NoError(t, r.err)
	var debts bundleJSON
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &debts))
	require.Len(t, debts.Events, 1)
	assert.Empty(t, debts.Events[0].Snapshot)

	r = runCLI(t, "export", "--limit", "-1")
	require.Error(t, r.err)
	assert.Equal(t, ExitCommandError, GetExitCode(r.err))
}

func TestClear(t *testing.T) {
	cliEnv(t)
	trackCash(t, "0", "1.00")

	r := runCLI(t, "clear")
	require.Error(t, r.err)
	assert.Equal(t, ExitCommandError, GetExitCode(r.err))
	assert.Contains(t, r.err.Error(), "--yes")

	r = runCLI(t, "clear", "--yes")
	require.NoError(t, r.err)
	assert.Equal(t, "History cleared.\n", r.stdout)

	r = runCLI(t, "log")
	require.NoError(t, r.err)
	assert.Equal(t, "No history.\n", r.stdout)
}

func TestServe_StopsWithContext(t *testing.T) {
	cliEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := runCLIContext(t, ctx, "serve", "--addr", "127.0.0.1:0")
	require.NoError(t, r.err)
	assert.Contains(t, r.stderr, "Serving history viewer on http://127.0.0.1:0")
}
