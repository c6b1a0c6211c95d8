package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement defines an external dependency reeler relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	// Alternatives are tried in order when Command is not found.
	Alternatives []string
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" && len(req.Alternatives) == 0 {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		candidates := append([]string{cmd}, req.Alternatives...)
		for _, candidate := range candidates {
			candidate = strings.TrimSpace(candidate)
			if candidate == "" {
				continue
			}
			if resolved, err := exec.LookPath(candidate); err == nil {
				status.Command = resolved
				status.Available = true
				break
			}
		}
		if !status.Available {
			if status.Command == "" {
				status.Command = strings.TrimSpace(req.Alternatives[0])
			}
			status.Detail = fmt.Sprintf("binary %q not found", status.Command)
		}
		results = append(results, status)
	}
	return results
}

// BrowserCandidates lists the executables chromedp's default allocator can
// drive, in lookup order.
func BrowserCandidates() []string {
	return []string{
		"headless-shell",
		"chromium",
		"chromium-browser",
		"google-chrome",
		"google-chrome-stable",
	}
}

// Missing returns the required (non-optional) dependencies that are unavailable.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status)
		}
	}
	return missing
}
