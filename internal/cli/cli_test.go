package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("%v: %v\n%s", args, err, out.String())
	}
	return out.String()
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	body := "storage:\n  driver: sqlite\n  sqlite_path: " + filepath.Join(dir, "progress.db") + "\nlog:\n  level: error\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestMigrateStatusAndBackupCommands(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)
	common := []string{"--config", cfg, "--env-file", filepath.Join(dir, ".env")}

	out := runCLI(t, "", append([]string{"migrate"}, common...)...)
	if !strings.Contains(out, "1 migration(s) applied") {
		t.Fatalf("unexpected migrate output %q", out)
	}

	out = runCLI(t, "", append([]string{"status"}, common...)...)
	if !strings.Contains(out, "module-1") || !strings.Contains(out, "unlocked") {
		t.Fatalf("expected module-1 unlocked in status, got:\n%s", out)
	}

	payload := strings.TrimSpace(runCLI(t, "", append([]string{"backup", "export"}, common...)...))
	if !strings.HasPrefix(payload, `{"v":1`) {
		t.Fatalf("unexpected payload %q", payload)
	}

	out = runCLI(t, payload, append([]string{"backup", "restore", "-"}, common...)...)
	if !strings.Contains(out, "restored mastery=true") {
		t.Fatalf("unexpected restore output %q", out)
	}

	png := filepath.Join(dir, "backup.png")
	runCLI(t, "", append([]string{"backup", "qr", "--out", png}, common...)...)
	if info, err := os.Stat(png); err != nil || info.Size() == 0 {
		t.Fatalf("expected qr png written: %v", err)
	}
}

func TestExportImportAndReportCommands(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)
	common := []string{"--config", cfg, "--env-file", filepath.Join(dir, ".env")}

	file := filepath.Join(dir, "export.json")
	runCLI(t, "", append([]string{"export", "--out", file}, common...)...)
	out := runCLI(t, "", append([]string{"import", file}, common...)...)
	if !strings.Contains(out, "imported") {
		t.Fatalf("unexpected import output %q", out)
	}

	xlsx := filepath.Join(dir, "progress.xlsx")
	runCLI(t, "", append([]string{"report", "--out", xlsx}, common...)...)
	if info, err := os.Stat(xlsx); err != nil || info.Size() == 0 {
		t.Fatalf("expected workbook written: %v", err)
	}

	out = runCLI(t, "", append([]string{"remind", "--once"}, common...)...)
	if out != "" {
		t.Fatalf("fresh learner has nothing to review, got %q", out)
	}
}
