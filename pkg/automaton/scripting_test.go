package automaton

import (
	"os"
	"path/filepath"
	"testing"
)

const testScript = `
function deploy(input) {
    return "deployed:" + input;
}
function healthcheck() {
    return "ok";
}
var notAFunction = 42;
`

func writeTestScript(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manifest.js")
	if err := os.WriteFile(path, []byte(testScript), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadJS_DiscoversTopLevelFunctions(t *testing.T) {
	path := writeTestScript(t)

	m, err := LoadJS(path)
	if err != nil {
		t.Fatalf("LoadJS: %v", err)
	}

	if _, ok := m.States["deploy"]; !ok {
		t.Error("expected a deploy state")
	}
	if _, ok := m.States["healthcheck"]; !ok {
		t.Error("expected a healthcheck state")
	}
	if _, ok := m.States["notAFunction"]; ok {
		t.Error("notAFunction is not a function and must not become a state")
	}
	if _, ok := m.States["idle"]; !ok {
		t.Error("expected the implicit idle state")
	}
}

func TestRunFunc_PassesArityOneArgument(t *testing.T) {
	path := writeTestScript(t)

	out, err := RunFunc(path, "deploy", "v2")
	if err != nil {
		t.Fatalf("RunFunc: %v", err)
	}
	if out != "deployed:v2" {
		t.Errorf("out = %q, want deployed:v2", out)
	}
}

func TestRunFunc_ZeroArityIgnoresInput(t *testing.T) {
	path := writeTestScript(t)

	out, err := RunFunc(path, "healthcheck", "ignored")
	if err != nil {
		t.Fatalf("RunFunc: %v", err)
	}
	if out != "ok" {
		t.Errorf("out = %q, want ok", out)
	}
}

func TestRunFunc_UnknownFunction(t *testing.T) {
	path := writeTestScript(t)

	if _, err := RunFunc(path, "missing", ""); err == nil {
		t.Error("expected an error for an undeclared function")
	}
}
