// scripting.go implements the alternate ".js manifest" automaton input
// mode (spec.md §9's "source-authored state machines" redesign note): each
// top-level function in a JS source becomes a state, entered by spawning a
// small helper that runs the named function inside an embedded goja VM.
package automaton

import (
	"fmt"
	"os"

	"github.com/dop251/goja"
)

// runnerCommand is the shell snippet synthesized for a JS-sourced state: it
// invokes the automaton's own helper subcommand, which in turn calls
// RunFunc against the named function.
const runnerCommand = "kontrol-automaton-run --script %s --func %s"

// LoadJS loads path as a JS manifest: every top-level function declaration
// becomes a state whose shell spawns the runner for that function, and
// which may transition to any other state (JS manifests declare no
// explicit transition graph, unlike YAML manifests).
func LoadJS(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("automaton: reading JS manifest %s: %w", path, err)
	}

	vm := goja.New()
	if _, err := vm.RunString(string(data)); err != nil {
		return nil, fmt.Errorf("automaton: evaluating JS manifest %s: %w", path, err)
	}

	m := &Manifest{Initial: "idle", States: map[string]State{
		"idle": {Tag: "idle", Next: []string{"*"}},
	}}

	global := vm.GlobalObject()
	for _, name := range global.Keys() {
		val := global.Get(name)
		if _, ok := goja.AssertFunction(val); !ok {
			continue
		}
		m.States[name] = State{
			Tag:   name,
			Shell: fmt.Sprintf(runnerCommand, path, name),
			Next:  []string{"*"},
		}
	}

	return m, nil
}

// RunFunc loads scriptPath, evaluates it, and calls funcName inside a
// fresh goja.Runtime. If the function has arity 1, input is passed as its
// sole argument (spec.md's "INPUT" contract). The function's return value,
// stringified, is the equivalent of captured stdout.
func RunFunc(scriptPath, funcName, input string) (string, error) {
	data, err := os.ReadFile(scriptPath)
	if err != nil {
		return "", fmt.Errorf("automaton: reading script %s: %w", scriptPath, err)
	}

	vm := goja.New()
	if _, err := vm.RunString(string(data)); err != nil {
		return "", fmt.Errorf("automaton: evaluating script %s: %w", scriptPath, err)
	}

	fnVal := vm.Get(funcName)
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		return "", fmt.Errorf("automaton: %s has no top-level function %q", scriptPath, funcName)
	}

	var args []goja.Value
	if obj := fnVal.ToObject(vm); obj != nil {
		if length := obj.Get("length"); length != nil && length.ToInteger() == 1 {
			args = []goja.Value{vm.ToValue(input)}
		}
	}

	result, err := fn(goja.Undefined(), args...)
	if err != nil {
		return "", fmt.Errorf("automaton: calling %s: %w", funcName, err)
	}
	return result.String(), nil
}
