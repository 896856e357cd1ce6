package executor

import (
	"os/exec"

	"github.com/workspace/agentcore"
)

// ResolveExecutable tries each of candidates, in order, via exec.LookPath,
// and returns the first that resolves. overridePath, if non-empty, is
// tried first and used verbatim even if it is not found on PATH (a host
// may point directly at a binary outside PATH). Returns
// AvailabilityStatus::NotFound-shaped detail via the returned error when
// nothing resolves.
func ResolveExecutable(overridePath string, candidates []string) (string, error) {
	if overridePath != "" {
		if _, err := exec.LookPath(overridePath); err == nil {
			return overridePath, nil
		}
		// An override that isn't found on PATH might still be a direct,
		// absolute path to an executable; exec.Command will surface a
		// clearer error at spawn time if it genuinely doesn't exist.
		return overridePath, nil
	}
	for _, candidate := range candidates {
		if path, err := exec.LookPath(candidate); err == nil {
			return path, nil
		}
	}
	return "", agentcore.ErrAgentNotAvailable
}
