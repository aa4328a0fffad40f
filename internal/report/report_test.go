package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ralt/rpmcheck/internal/config"
	"github.com/ralt/rpmcheck/internal/models"
)

func loadConfig(t *testing.T, content string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	cfg, err := config.Load([]config.Source{{Path: path}})
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func TestSuppressionIsOrderIndependent(t *testing.T) {
	// Two layer orders, same rules: suppression outcome must agree.
	layouts := []string{
		`
[[exceptions]]
message = "no-url"
[[exceptions]]
message = "strange-*"
package = "mypkg*"
`,
		`
[[exceptions]]
message = "strange-*"
package = "mypkg*"
[[exceptions]]
message = "no-url"
`,
	}

	for i, layout := range layouts {
		cfg := loadConfig(t, layout)
		var out bytes.Buffer
		p := New(&out, cfg, false)

		rep := p.NewReport("mypkg-1.0-1.x86_64")
		rep.Add(models.Diagnostic{Message: "no-url", Severity: models.SeverityWarning})
		rep.Add(models.Diagnostic{Message: "strange-permission", Severity: models.SeverityWarning})
		rep.Add(models.Diagnostic{Message: "no-license", Severity: models.SeverityError})

		if got := len(rep.Diagnostics()); got != 1 {
			t.Errorf("Layout %d: expected 1 surviving diagnostic, got %d", i, got)
		}
		if rep.Suppressed() != 2 {
			t.Errorf("Layout %d: expected 2 suppressed, got %d", i, rep.Suppressed())
		}
		if rep.Diagnostics()[0].Message != "no-license" {
			t.Errorf("Layout %d: wrong diagnostic survived: %s", i, rep.Diagnostics()[0].Message)
		}
	}
}

func TestPackageScopedExceptionOnlySuppressesThatPackage(t *testing.T) {
	cfg := loadConfig(t, `
[[exceptions]]
message = "strange-permission"
package = "mypkg*"
`)
	var out bytes.Buffer
	p := New(&out, cfg, false)

	mine := p.NewReport("mypkg-1.0-1.x86_64")
	mine.Add(models.Diagnostic{Message: "strange-permission", Severity: models.SeverityWarning,
		Args: []string{"/usr/bin/foo", "0777"}})

	other := p.NewReport("otherpkg-2.0-1.x86_64")
	other.Add(models.Diagnostic{Message: "strange-permission", Severity: models.SeverityWarning,
		Args: []string{"/usr/bin/foo", "0777"}})

	if len(mine.Diagnostics()) != 0 {
		t.Errorf("Expected diagnostic suppressed for scoped package")
	}
	if len(other.Diagnostics()) != 1 {
		t.Errorf("Expected identical violation to survive in the other package")
	}
}

func TestNoExceptionsDisablesFiltering(t *testing.T) {
	cfg := loadConfig(t, `
[[exceptions]]
message = "*"
`)
	var out bytes.Buffer
	p := New(&out, cfg, true)

	rep := p.NewReport("mypkg-1.0-1.x86_64")
	rep.Add(models.Diagnostic{Message: "no-url", Severity: models.SeverityWarning})
	if len(rep.Diagnostics()) != 1 {
		t.Errorf("Expected filtering disabled, diagnostic was suppressed")
	}
}

func TestHasErrorsTracksOnlyNonSuppressedErrors(t *testing.T) {
	cfg := loadConfig(t, `
[[exceptions]]
message = "suppressed-error"
`)
	var out bytes.Buffer
	p := New(&out, cfg, false)

	rep := p.NewReport("a-1-1.noarch")
	rep.Add(models.Diagnostic{Message: "suppressed-error", Severity: models.SeverityError})
	rep.Add(models.Diagnostic{Message: "some-warning", Severity: models.SeverityWarning})
	if p.HasErrors() {
		t.Fatalf("Suppressed errors and warnings must not set the error state")
	}

	rep2 := p.NewReport("b-1-1.noarch")
	rep2.Add(models.Diagnostic{Message: "real-error", Severity: models.SeverityError})
	if !p.HasErrors() {
		t.Fatalf("Expected error state after a non-suppressed error diagnostic")
	}
}

func TestRenderFormat(t *testing.T) {
	cfg := loadConfig(t, "")
	var out bytes.Buffer
	p := New(&out, cfg, false)
	p.Describe("no-license", "Every package must declare its license.")

	rep := p.NewReport("mypkg-1.0-1.x86_64")
	rep.Add(models.Diagnostic{Message: "no-license", Severity: models.SeverityError})
	rep.Add(models.Diagnostic{Message: "strange-permission", Severity: models.SeverityWarning,
		Args: []string{"/usr/bin/foo", "0777"}})
	rep.Flush(false)

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d: %q", len(lines), out.String())
	}
	if lines[0] != "mypkg-1.0-1.x86_64: E: no-license" {
		t.Errorf("Unexpected error line: %q", lines[0])
	}
	if lines[1] != "mypkg-1.0-1.x86_64: W: strange-permission /usr/bin/foo 0777" {
		t.Errorf("Unexpected warning line: %q", lines[1])
	}

	// Explain mode appends the description once per message id
	out.Reset()
	rep2 := p.NewReport("mypkg-1.0-1.x86_64")
	rep2.Add(models.Diagnostic{Message: "no-license", Severity: models.SeverityError})
	rep2.Flush(true)
	if !strings.Contains(out.String(), "  Every package must declare its license.") {
		t.Errorf("Expected indented description in explain mode: %q", out.String())
	}
}
