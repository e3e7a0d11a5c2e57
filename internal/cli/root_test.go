package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eduverse-client-go/internal/bootstrap"
	"eduverse-client-go/internal/domain/mint"
	"eduverse-client-go/internal/domain/mint/model"
	"eduverse-client-go/internal/domain/wallet"
	"eduverse-client-go/internal/platform/config"
	platformtesting "eduverse-client-go/internal/platform/testing"
	"eduverse-client-go/internal/platform/testing/apitest"
)

type testCLI struct {
	cmd    *cobra.Command
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func newTestCLI(cfg *config.Config, stdin string, args ...string) *testCLI {
	opts := &RootOptions{app: bootstrap.Options{
		Config:    cfg,
		Confirmer: wallet.StaticConfirmer(false),
	}}
	cmd := newRootCommand(opts)
	c := &testCLI{cmd: cmd, stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	cmd.SetOut(c.stdout)
	cmd.SetErr(c.stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	return c
}

func (c *testCLI) run() error {
	return c.cmd.ExecuteContext(context.Background())
}

func runCLI(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	c := newTestCLI(cfg, "", args...)
	err := c.run()
	return c.stdout.String(), err
}

func newBackend(t *testing.T) (*apitest.Backend, *config.Config) {
	t.Helper()
	backend := apitest.New()
	t.Cleanup(backend.Close)
	return backend, platformtesting.SetupTestConfig(t, backend.BaseURL())
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "eduverse", cmd.Use)
	assert.Contains(t, cmd.Long, "signing")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	paths := [][]string{
		{"login"}, {"logout"}, {"whoami"},
		{"wallet", "connect"}, {"wallet", "status"},
		{"mint", "create"}, {"mint", "retry-commit"}, {"mint", "retry-finalize"},
		{"mint", "attach"}, {"mint", "reconcile"}, {"mint", "pending"},
		{"mint", "show"}, {"mint", "history"},
		{"search"}, {"balance"}, {"transfer"},
		{"db", "status"}, {"db", "rollback"},
	}
	for _, path := range paths {
		t.Run(strings.Join(path, " "), func(t *testing.T) {
			sub, _, err := cmd.Find(path)
			require.NoError(t, err)
			require.NotNil(t, sub)
			assert.Equal(t, path[len(path)-1], sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
	assert.Equal(t, "config.yaml", configFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("username"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("password"))
}

func TestMintCreateFlags(t *testing.T) {
	cmd := NewRootCommand()
	create, _, err := cmd.Find([]string{"mint", "create"})
	require.NoError(t, err)
	for _, name := range []string{"content-address", "title", "file", "description"} {
		assert.NotNil(t, create.Flags().Lookup(name), name)
	}
}

func TestInvalidFormat(t *testing.T) {
	_, cfg := newBackend(t)
	_, err := runCLI(t, cfg, "whoami", "--format", "yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestWhoamiSignsInWithFlags(t *testing.T) {
	_, cfg := newBackend(t)
	out, err := runCLI(t, cfg, "whoami", "--username", "alice", "--password", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "credential=")
}

func TestWhoamiWithoutSession(t *testing.T) {
	_, cfg := newBackend(t)
	_, err := runCLI(t, cfg, "whoami", "--username", "")
	require.Error(t, err)
	assert.Equal(t, ExitAuth, GetExitCode(err))
}

func TestLoginReadsPasswordFromStdin(t *testing.T) {
	_, cfg := newBackend(t)
	c := newTestCLI(cfg, "secret\n", "login", "--username", "alice", "--password", "", "--format", "json")
	require.NoError(t, c.run())

	var resp struct {
		Status string       `json:"status"`
		Data   identityView `json:"data"`
	}
	require.NoError(t, sonic.Unmarshal(c.stdout.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "alice", resp.Data.Username)
	assert.Len(t, resp.Data.Credential, 8)
	assert.Contains(t, c.stderr.String(), "Password:")
}

func TestLoginRejectsBadPassword(t *testing.T) {
	_, cfg := newBackend(t)
	_, err := runCLI(t, cfg, "login", "--username", "alice", "--password", "wrong")
	require.Error(t, err)
	assert.Equal(t, ExitAuth, GetExitCode(err))
}

func TestLogoutCallsBackend(t *testing.T) {
	backend, cfg := newBackend(t)
	out, err := runCLI(t, cfg, "logout", "--username", "alice", "--password", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out")
	assert.Equal(t, 1, backend.Calls(apitest.Route("POST", apitest.PathLogout)))
}

func TestWalletConnectWithoutAgent(t *testing.T) {
	_, cfg := newBackend(t)
	_, err := runCLI(t, cfg, "wallet", "connect")
	require.Error(t, err)
	assert.Equal(t, ExitWallet, GetExitCode(err))
}

func TestWalletStatusWithoutAgent(t *testing.T) {
	_, cfg := newBackend(t)
	out, err := runCLI(t, cfg, "wallet", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "wallet ")
}

func TestMintWithoutLedger(t *testing.T) {
	_, cfg := newBackend(t)
	_, err := runCLI(t, cfg, "mint", "retry-commit", "saga-1", "--username", "alice", "--password", "secret")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestMintPendingListsUnfinishedRecords(t *testing.T) {
	_, cfg := newBackend(t)
	cfg.Mint.Store.Type = "sqlite"
	cfg.Mint.Store.SQLite.DSN = filepath.Join(t.TempDir(), "mint.db")

	app, err := bootstrap.New(context.Background(), bootstrap.Options{Config: cfg, Console: &bytes.Buffer{}})
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, app.Store.Save(context.Background(), &model.Record{
		ID: "saga-open", Phase: model.PhaseCreated, OffChainID: "res-1", Title: "Optics",
		ContentAddress: "ipfs://optics", FailedPhase: model.StepCommit, LastError: "rpc down",
		CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, app.Store.Save(context.Background(), &model.Record{
		ID: "saga-done", Phase: model.PhaseFinalized, OffChainID: "res-2", Title: "Acoustics",
		ContentAddress: "ipfs://acoustics", Ledger: &model.LedgerReference{TokenID: "7", TxHash: "0xabc"},
		CreatedAt: now, UpdatedAt: now,
	}))
	app.Close()

	out, err := runCLI(t, cfg, "mint", "pending", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   []struct {
			ID     string `json:"id"`
			Phase  string `json:"phase"`
			Action string `json:"action"`
		} `json:"data"`
	}
	require.NoError(t, sonic.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "saga-open", resp.Data[0].ID)
	assert.Equal(t, "created", resp.Data[0].Phase)
	assert.Equal(t, "retry_commit", resp.Data[0].Action)

	out, err = runCLI(t, cfg, "mint", "show", "saga-done")
	require.NoError(t, err)
	assert.Contains(t, out, "token=7")

	out, err = runCLI(t, cfg, "mint", "history", "saga-open")
	require.NoError(t, err)
	assert.Contains(t, out, "No events for saga-open")
}

func TestMintHistoryNeedsSQLite(t *testing.T) {
	_, cfg := newBackend(t)
	_, err := runCLI(t, cfg, "mint", "history", "saga-1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSearchFetchesEveryPage(t *testing.T) {
	backend, cfg := newBackend(t)
	base := time.Now()
	for i, title := range []string{"Optics I", "Optics II", "Optics III", "Acoustics"} {
		backend.PutResource(apitest.Resource{
			ID:             "res-" + title,
			Title:          title,
			ContentAddress: "ipfs://" + title,
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		})
	}

	out, err := runCLI(t, cfg, "search", "optics", "--size", "2", "--all", "--username", "alice", "--password", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "Optics III")
	assert.NotContains(t, out, "Acoustics")
	assert.Contains(t, out, "3 of 3")
}

func TestBalanceRejectsBadAddress(t *testing.T) {
	_, cfg := newBackend(t)
	_, err := runCLI(t, cfg, "balance", "not-an-address")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestBalanceWithoutLedger(t *testing.T) {
	_, cfg := newBackend(t)
	_, err := runCLI(t, cfg, "balance", "0x00000000000000000000000000000000000a11ce")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTransferRejectsBadAmount(t *testing.T) {
	_, cfg := newBackend(t)
	for _, amount := range []string{"0", "-5", "ten"} {
		_, err := runCLI(t, cfg, "transfer", amount)
		require.Error(t, err, amount)
		assert.Equal(t, ExitCommandError, GetExitCode(err), amount)
	}
}

func TestDBStatusAndRollback(t *testing.T) {
	_, cfg := newBackend(t)
	cfg.Mint.Store.Type = "sqlite"
	cfg.Mint.Store.SQLite.DSN = filepath.Join(t.TempDir(), "mint.db")

	app, err := bootstrap.New(context.Background(), bootstrap.Options{Config: cfg, Console: &bytes.Buffer{}})
	require.NoError(t, err)
	app.Bus.Publish(mint.TopicPhase, mint.PhaseEvent{RecordID: "saga-1", Phase: model.PhaseCreated})
	app.Close()

	out, err := runCLI(t, cfg, "db", "status", "--format", "json")
	require.NoError(t, err)
	var status struct {
		Data []migrationView `json:"data"`
	}
	require.NoError(t, sonic.Unmarshal([]byte(out), &status))
	require.Len(t, status.Data, 3)

	out, err = runCLI(t, cfg, "mint", "history", "saga-1")
	require.NoError(t, err)
	assert.Contains(t, out, "mint:phase")

	_, err = runCLI(t, cfg, "db", "rollback", "002_domain_events")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	out, err = runCLI(t, cfg, "db", "rollback", "002_domain_events", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Rolled back 002_domain_events")

	out, err = runCLI(t, cfg, "mint", "history", "saga-1")
	require.NoError(t, err)
	assert.Contains(t, out, "No events for saga-1")
}

func TestDBNeedsSQLite(t *testing.T) {
	_, cfg := newBackend(t)
	_, err := runCLI(t, cfg, "db", "status")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
