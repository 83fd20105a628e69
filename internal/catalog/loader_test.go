package catalog_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"learner-progress-service/internal/catalog"
	"learner-progress-service/internal/domain"
)

func TestDefaultCatalog(t *testing.T) {
	c := catalog.Default()
	if len(c.Modules) == 0 {
		t.Fatal("Default() returned no modules")
	}
	if c.Modules[0].ID != "module-1" {
		t.Errorf("first module = %q, want module-1", c.Modules[0].ID)
	}
	last := c.Modules[len(c.Modules)-1]
	if last.HasStep(domain.StepPostTest) {
		t.Errorf("module %s should not have a post-test", last.ID)
	}
}

func TestFileLoader_LoadsYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	writeFile(t, path, `
modules:
  - id: intro
    title: Intro
    steps: [theory, postTest]
    post_test_key: [0, 1]
  - id: next
    title: Next
`)

	c, err := catalog.NewFileLoader(path).LoadCatalog(context.Background())
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	if len(c.Modules) != 2 {
		t.Fatalf("modules = %d, want 2", len(c.Modules))
	}
	if got := c.Modules[0].PostTestQuestions(); got != 2 {
		t.Errorf("PostTestQuestions() = %d, want 2", got)
	}
	if got := len(c.Modules[1].StepList()); got != 5 {
		t.Errorf("default step count = %d, want 5", got)
	}
}

func TestFileLoader_RejectsBadStepOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	writeFile(t, path, `
modules:
  - id: broken
    steps: [reflection, postTest]
`)

	_, err := catalog.NewFileLoader(path).LoadCatalog(context.Background())
	if !errors.Is(err, domain.ErrInvalidCatalog) {
		t.Fatalf("LoadCatalog() error = %v, want ErrInvalidCatalog", err)
	}
}

func TestFileLoader_EmptyPathUsesDefault(t *testing.T) {
	c, err := catalog.NewFileLoader("").LoadCatalog(context.Background())
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	if len(c.Modules) != len(catalog.Default().Modules) {
		t.Error("empty path should serve the default catalog")
	}
}

func TestParse_DuplicateIDs(t *testing.T) {
	_, err := catalog.Parse([]byte("modules:\n  - id: a\n  - id: a\n"))
	if !errors.Is(err, domain.ErrInvalidCatalog) {
		t.Fatalf("Parse() error = %v, want ErrInvalidCatalog", err)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
