// Package deps locates the external binaries scriptreel shells out to. Only the
// continuity stage needs any: ffprobe to read a clip's duration and ffmpeg to
// grab its terminal frame.
package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement names a binary and whether a run can proceed without it.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is a Requirement resolved against PATH. Path is set when the binary was
// found; Detail explains why it was not.
type Status struct {
	Requirement
	Available bool
	Path      string
	Detail    string
}

// CheckBinaries resolves every requirement in order.
func CheckBinaries(requirements []Requirement) []Status {
	out := make([]Status, len(requirements))
	for i, req := range requirements {
		req.Command = strings.TrimSpace(req.Command)
		req.Description = strings.TrimSpace(req.Description)
		out[i] = resolve(req)
	}
	return out
}

func resolve(req Requirement) Status {
	st := Status{Requirement: req}
	if req.Command == "" {
		st.Detail = "command not configured"
		return st
	}
	path, err := exec.LookPath(req.Command)
	if err != nil {
		st.Detail = fmt.Sprintf("binary %q not found", req.Command)
		return st
	}
	st.Available = true
	st.Path = path
	return st
}
