// Package deps verifies the external tools a run depends on before any
// cluster work starts.
package deps

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/pvcship/pvcship/pkg/log"
	"github.com/pvcship/pvcship/pkg/prompt"
)

const kubectlInstallHint = "https://kubernetes.io/docs/tasks/tools/"

// Requirements describes what a particular run needs from the host.
type Requirements struct {
	// Kubectl is the configured kubectl binary name or path.
	Kubectl string
	// Context is the kubeconfig context to probe, empty for the current one.
	Context string
}

// Check verifies kubectl is on PATH and the cluster answers. A missing
// binary in an interactive run prompts with an install hint and may be
// waved through; non-interactive runs fail outright.
func Check(ctx context.Context, req Requirements, prompter prompt.Prompter) error {
	if err := checkBinary(req.Kubectl, "kubectl is required to reach the cluster ("+kubectlInstallHint+")", prompter); err != nil {
		return err
	}

	args := []string{"version", "--request-timeout=10s", "--output=yaml"}
	if req.Context != "" {
		args = append([]string{"--context", req.Context}, args...)
	}
	if out, err := exec.CommandContext(ctx, req.Kubectl, args...).CombinedOutput(); err != nil {
		log.WithComponent("deps").Debug().Str("output", string(out)).Msg("kubectl version probe failed")
		return fmt.Errorf("cluster is not reachable via %s: %w", req.Kubectl, err)
	}
	return nil
}

func checkBinary(name, hint string, prompter prompt.Prompter) error {
	if _, err := exec.LookPath(name); err == nil {
		return nil
	}
	if prompter.Interactive() {
		proceed, err := prompter.Confirm(fmt.Sprintf("%s not found on PATH. %s. Continue anyway?", name, hint), false)
		if err == nil && proceed {
			return nil
		}
	}
	return fmt.Errorf("required binary %q not found on PATH; %s", name, hint)
}
