package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
)

// Flag values as registered, restored before every command test.
var (
	initialEvaluateFlags    = evaluateFlags
	initialDemoFlags        = demoFlags
	initialBatchFlags       = batchFlags
	initialValidateFlags    = validateFlags
	initialServeFlags       = serveFlags
	initialAuditQueryFlags  = auditQueryFlags
	initialAuditShowFlags   = auditShowFlags
	initialAuditReportFlags = auditReportFlags
	initialAuditExportFlags = auditExportFlags
	initialAuditVerifyFlags = auditVerifyFlags
	initialAuditPruneFlags  = auditPruneFlags
)

func TestMain(m *testing.M) {
	// init has bound the flags by now, so their defaults are in place.
	initialEvaluateFlags = evaluateFlags
	initialDemoFlags = demoFlags
	initialBatchFlags = batchFlags
	initialValidateFlags = validateFlags
	initialServeFlags = serveFlags
	initialAuditQueryFlags = auditQueryFlags
	initialAuditShowFlags = auditShowFlags
	initialAuditReportFlags = auditReportFlags
	initialAuditExportFlags = auditExportFlags
	initialAuditVerifyFlags = auditVerifyFlags
	initialAuditPruneFlags = auditPruneFlags

	os.Exit(m.Run())
}

func resetFlags() {
	evaluateFlags = initialEvaluateFlags
	demoFlags = initialDemoFlags
	batchFlags = initialBatchFlags
	validateFlags = initialValidateFlags
	serveFlags = initialServeFlags
	auditQueryFlags = initialAuditQueryFlags
	auditShowFlags = initialAuditShowFlags
	auditReportFlags = initialAuditReportFlags
	auditExportFlags = initialAuditExportFlags
	auditVerifyFlags = initialAuditVerifyFlags
	auditPruneFlags = initialAuditPruneFlags
	verbose = false
}

// testEnv is a scratch directory with a configuration whose audit store,
// export and archive directories live inside it.
type testEnv struct {
	dir        string
	dbPath     string
	exportDir  string
	archiveDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	resetFlags()

	dir := t.TempDir()
	env := &testEnv{
		dir:        dir,
		dbPath:     filepath.Join(dir, "audit.db"),
		exportDir:  filepath.Join(dir, "reports"),
		archiveDir: filepath.Join(dir, "archives"),
	}

	cfg := fmt.Sprintf(`
telemetry:
  logging:
    level: error
audit:
  backend: sqlite
  sqlite:
    path: %s
  export:
    dir: %s
  retention:
    days: 30
    archive_path: %s
`, env.dbPath, env.exportDir, env.archiveDir)

	path := env.write(t, "lucid.yaml", cfg)
	origCfgFile := cfgFile
	cfgFile = path
	t.Cleanup(func() {
		cfgFile = origCfgFile
		resetFlags()
	})
	return env
}

func (e *testEnv) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// scenarioRequest writes the sample request with the given governance
// block (empty for none).
func (e *testEnv) scenarioRequest(t *testing.T, name, governance string) string {
	t.Helper()
	doc := `{"features": {"attendance": 0.82, "assignments": 0.67, "labs": 0.74},
 "policy": {"attendance": 0.4, "assignments": 0.3, "labs": 0.3}`
	if governance != "" {
		doc += `, "governance": ` + governance
	}
	return e.write(t, name, doc+"}")
}

// lowRequest writes a request whose confidence is about 0.686.
func (e *testEnv) lowRequest(t *testing.T, name string) string {
	t.Helper()
	return e.write(t, name, `
features:
  attendance: 0.50
  assignments: 0.40
  labs: 0.45
policy:
  attendance: 0.4
  assignments: 0.3
  labs: 0.3
`)
}

func newTestCommand() (*cobra.Command, *bytes.Buffer) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	return cmd, &out
}
