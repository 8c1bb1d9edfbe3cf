package supervisor

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

const runtimeStartupGrace = 2 * time.Second

// runtimeProcess wraps a best-effort local model runtime subprocess, started
// when config.RuntimeAutoStart is set and the configured runtime_base_url is
// unreachable at boot (spec §4.13).
type runtimeProcess struct {
	cmd *exec.Cmd
	log zerolog.Logger
}

// spawnRuntime launches an Ollama-compatible "serve" binary, preferring a
// copy bundled under runtimeDir over $PATH, in its own process group so
// shutdown can signal it independently of the parent (spec §4.13).
func spawnRuntime(runtimeDir string, log zerolog.Logger) (*runtimeProcess, error) {
	name := "ollama"
	bundled := filepath.Join(runtimeDir, name)
	bin := bundled
	if _, err := exec.LookPath(bundled); err != nil {
		path, err := exec.LookPath(name)
		if err != nil {
			return nil, fmt.Errorf("no %s binary found on PATH or in %s", name, runtimeDir)
		}
		bin = path
	}

	cmd := exec.Command(bin, "serve")
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", bin, err)
	}
	log.Info().Str("binary", bin).Int("pid", cmd.Process.Pid).Msg("model runtime auto-started")

	time.Sleep(runtimeStartupGrace)

	return &runtimeProcess{cmd: cmd, log: log}, nil
}

// Stop signals the runtime process group to exit. Best-effort: memscreend
// does not depend on the runtime having fully stopped before the daemon
// itself exits.
func (p *runtimeProcess) Stop() {
	if p == nil || p.cmd == nil || p.cmd.Process == nil {
		return
	}
	if err := stopProcessGroup(p.cmd); err != nil {
		p.log.Warn().Err(err).Msg("failed to stop auto-started model runtime")
	}
}
