package pkgmanager

import (
	"os"
	"strings"
	"testing"
)

func TestModFile(t *testing.T) {
	content := `
module ymd-test

require github.com/user/repo v1.0.0
`
	tmpfile, err := os.CreateTemp("", "ymd.mod")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpfile.Name())

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	config, err := ParseModFile(tmpfile.Name())
	if err != nil {
		t.Fatalf("ParseModFile failed: %v", err)
	}

	if config.Module != "ymd-test" {
		t.Errorf("expected module ymd-test, got %s", config.Module)
	}
	if config.Require["github.com/user/repo"] != "v1.0.0" {
		t.Errorf("expected require github.com/user/repo v1.0.0, got %s", config.Require["github.com/user/repo"])
	}

	config.Require["github.com/other/repo"] = "v2.0.0"
	if err := config.Save(tmpfile.Name()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(tmpfile.Name())
	if err != nil {
		t.Fatal(err)
	}

	saved := string(data)
	if !strings.Contains(saved, "require github.com/other/repo v2.0.0") {
		t.Errorf("expected saved content to contain the new require line, got:\n%s", saved)
	}
}
