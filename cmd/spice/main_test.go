package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-ledger/internal/testutil"
)

type cliHarness struct {
	t          *testing.T
	dir        string
	configPath string
}

func newCLIHarness(t *testing.T) *cliHarness {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	configPath := filepath.Join(dir, "config.yaml")
	config := fmt.Sprintf(`database:
  path: %s
storage:
  uploads_dir: %s
  models_dir: %s
training:
  trees: 10
  cv_folds: 2
retrain:
  auto_activate: true
logging:
  level: error
`, filepath.Join(dir, "spice.db"), filepath.Join(dir, "uploads"), filepath.Join(dir, "models"))
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0o600))

	return &cliHarness{t: t, dir: dir, configPath: configPath}
}

func (h *cliHarness) run(args ...string) (string, error) {
	h.t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(append([]string{"--config", h.configPath, "--env-file", filepath.Join(h.dir, ".env")}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func (h *cliHarness) mustRun(args ...string) string {
	h.t.Helper()
	output, err := h.run(args...)
	require.NoError(h.t, err, "spice %s", strings.Join(args, " "))
	return output
}

func (h *cliHarness) writeFile(name string, data []byte) string {
	h.t.Helper()
	path := filepath.Join(h.dir, name)
	require.NoError(h.t, os.WriteFile(path, data, 0o600))
	return path
}

func labeledCSV() []byte {
	var sb strings.Builder
	sb.WriteString("date,description,value,category\n")
	for _, row := range testutil.SampleLabeledData().Build() {
		fmt.Fprintf(&sb, "%s,%s,%s,%s\n", row.Date.Format("2006-01-02"), row.Description, row.Amount.String(), row.Category)
	}
	return []byte(sb.String())
}

func TestImportReviewFlow(t *testing.T) {
	h := newCLIHarness(t)
	statement := h.writeFile("statement.ofx", testutil.SampleBankStatement().Bytes())

	output := h.mustRun("import", statement)
	assert.Contains(t, output, "3 of 3")
	assert.Contains(t, output, "No active model")

	output = h.mustRun("import", statement)
	assert.Contains(t, output, "3 already imported")

	output = h.mustRun("batches", "list")
	assert.Contains(t, output, "statement.ofx")

	output = h.mustRun("review", "list", "1")
	assert.Contains(t, output, "STARBUCKS")

	h.mustRun("review", "set", "1", "1", "--status", "modified", "--category", "Coffee")
	h.mustRun("review", "set", "1", "2", "--status", "modified", "--category", "Groceries")
	output = h.mustRun("review", "set", "1", "3", "--status", "rejected")
	assert.Contains(t, output, "Batch 1 completed")

	output = h.mustRun("train", "auto", "--min", "50")
	assert.Contains(t, output, "2 eligible, 50 required")
}

func TestReviewUnknownTransaction(t *testing.T) {
	h := newCLIHarness(t)
	statement := h.writeFile("statement.ofx", testutil.SampleBankStatement().Bytes())
	h.mustRun("import", statement)

	_, err := h.run("review", "set", "1", "99", "--status", "rejected")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transaction 99 not found in batch 1")
}

func TestDryRunStoresNothing(t *testing.T) {
	h := newCLIHarness(t)
	statement := h.writeFile("statement.ofx", testutil.SampleBankStatement().Bytes())

	output := h.mustRun("import", "--dry-run", statement)
	assert.Contains(t, output, "Whole Foods Market")

	output = h.mustRun("batches", "list")
	assert.Contains(t, output, "No batches found")
}

func TestTrainActivateAndCategorize(t *testing.T) {
	h := newCLIHarness(t)
	training := h.writeFile("labeled.csv", labeledCSV())

	output := h.mustRun("train", "validate", training)
	assert.Contains(t, output, "valid training file")

	output = h.mustRun("train", "preview", training, "--rows", "3")
	assert.Contains(t, output, "Categories: 4")

	output = h.mustRun("train", "csv", training)
	assert.Contains(t, output, "Training job 1 completed")
	assert.Contains(t, output, "Activated as the live model")

	output = h.mustRun("model", "info")
	assert.Contains(t, output, "Live model")
	assert.Contains(t, output, "Coffee")

	output = h.mustRun("model", "evaluate", training)
	assert.Contains(t, output, "Samples:  60")

	output = h.mustRun("train", "history", "--format", "yaml")
	assert.Contains(t, output, "source: MANUAL_CSV")
	assert.Contains(t, output, "status: COMPLETED")

	statement := h.writeFile("statement.ofx", testutil.SampleBankStatement().Bytes())
	output = h.mustRun("import", statement)
	assert.NotContains(t, output, "No active model")
}

func TestTrainRejectsInvalidFile(t *testing.T) {
	h := newCLIHarness(t)
	bad := h.writeFile("bad.csv", []byte("when,what\n2024-01-01,coffee\n"))

	_, err := h.run("train", "csv", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid training file")
}

func TestModelInfoWithoutModel(t *testing.T) {
	h := newCLIHarness(t)

	output := h.mustRun("model", "info")
	assert.Contains(t, output, "No live model")

	output = h.mustRun("model", "info", "--format", "yaml")
	assert.Contains(t, output, "loaded: false")
}

func TestCheckpointLifecycle(t *testing.T) {
	h := newCLIHarness(t)

	output := h.mustRun("checkpoint", "create", "--tag", "before-cleanup", "--description", "manual snapshot")
	assert.Contains(t, output, "before-cleanup")

	output = h.mustRun("checkpoint", "list")
	assert.Contains(t, output, "before-cleanup")

	output = h.mustRun("checkpoint", "delete", "before-cleanup")
	assert.Contains(t, output, "Deletion cancelled")

	output = h.mustRun("checkpoint", "delete", "before-cleanup", "--force")
	assert.Contains(t, output, "Deleted checkpoint")

	_, err := h.run("checkpoint", "restore", "before-cleanup", "--force")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestMigrateStatus(t *testing.T) {
	h := newCLIHarness(t)

	h.mustRun("migrate")
	output := h.mustRun("migrate", "--status")
	assert.Contains(t, output, "Current version: 3")
}

func TestDuplicatesAcrossStatements(t *testing.T) {
	h := newCLIHarness(t)
	day := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	first := h.writeFile("jan.ofx", testutil.NewStatement().WithTransactions(
		testutil.OFXTransaction{FITID: "A1", Date: day, Amount: "-25.50", Name: "STARBUCKS STORE 1234"},
	).Bytes())
	second := h.writeFile("jan-export.ofx", testutil.NewStatement().WithTransactions(
		testutil.OFXTransaction{FITID: "B1", Date: day, Amount: "-25.50", Name: "STARBUCKS STORE 1234"},
	).Bytes())
	h.mustRun("import", first)
	h.mustRun("import", second)

	output := h.mustRun("duplicates", "find")
	assert.Contains(t, output, "STARBUCKS STORE 1234")

	output = h.mustRun("duplicates", "merge", "1", "2")
	assert.Contains(t, output, "removed 1")

	output = h.mustRun("duplicates", "find")
	assert.Contains(t, output, "No duplicates found")
}

func TestVersion(t *testing.T) {
	h := newCLIHarness(t)
	output := h.mustRun("version")
	assert.Equal(t, "spice dev\n", output)
}
