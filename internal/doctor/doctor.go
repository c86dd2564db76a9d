// Package doctor runs readiness diagnostics for config, the wrapped
// executable, the runtime directory, and a running backend.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rbright/adaptord/internal/config"
	"github.com/rbright/adaptord/internal/ipc"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
// connFile may be empty when no backend is expected to be running.
func Run(ctx context.Context, cfg config.Loaded, connFile string) Report {
	checks := []Check{}

	if cfg.Exists {
		checks = append(checks, Check{
			Name:    "config",
			Pass:    true,
			Message: fmt.Sprintf("loaded %q", cfg.Path),
		})
	} else {
		checks = append(checks, Check{
			Name:    "config",
			Pass:    true,
			Message: fmt.Sprintf("%q not found; using defaults", cfg.Path),
		})
	}
	for _, warning := range cfg.Warnings {
		checks = append(checks, Check{
			Name:    "config",
			Pass:    true,
			Message: warning.Message,
		})
	}

	checks = append(checks, checkCommand(cfg.Config.Adaptor.Argv, "adaptor"))
	if cfg.Config.Adaptor.Dir != "" {
		checks = append(checks, checkDir(cfg.Config.Adaptor.Dir, "adaptor.dir"))
	}
	checks = append(checks, checkRuntimeDir())

	if connFile != "" {
		checks = append(checks, checkBackend(ctx, cfg.Config, connFile))
	}

	return Report{Checks: checks}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkDir validates that a directory exists.
func checkDir(dir, name string) Check {
	info, err := os.Stat(dir)
	if err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	if !info.IsDir() {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("%q is not a directory", dir)}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("directory %q exists", dir)}
}

// checkRuntimeDir validates that the endpoint's parent directory is writable,
// since the backend must create its socket there.
func checkRuntimeDir() Check {
	dir := filepath.Dir(ipc.DefaultEndpoint().Address)
	probe := filepath.Join(dir, fmt.Sprintf(".adaptord-doctor-%d", os.Getpid()))
	if err := os.WriteFile(probe, nil, 0o600); err != nil {
		return Check{Name: "runtime.dir", Pass: false, Message: fmt.Sprintf("cannot write to %q: %v", dir, err)}
	}
	_ = os.Remove(probe)
	return Check{Name: "runtime.dir", Pass: true, Message: fmt.Sprintf("%q is writable", dir)}
}

// checkBackend probes the backend advertised in the connection file.
func checkBackend(ctx context.Context, cfg config.Config, connFile string) Check {
	ep, err := ipc.ReadConnectionFile(connFile)
	if err != nil {
		return Check{Name: "backend", Pass: false, Message: err.Error()}
	}
	alive, err := ipc.Probe(ctx, ep, cfg.RequestTimeout.Duration)
	if err != nil {
		return Check{Name: "backend", Pass: false, Message: fmt.Sprintf("probe failed: %v", err)}
	}
	if !alive {
		return Check{Name: "backend", Pass: false, Message: fmt.Sprintf("no backend listening at %s", ep.Address)}
	}
	return Check{Name: "backend", Pass: true, Message: fmt.Sprintf("responding at %s", ep.Address)}
}
