package chrome

import (
	"errors"
	"fmt"
	"os"
	"strings"

	u "ogimage/internal/utils"
)

// ErrNoBrowser is returned when none of the candidate executables exist.
var ErrNoBrowser = errors.New("no browser executable found")

// ExecPathResolver decides which browser binary to launch. An empty path
// lets chromedp search its default locations.
type ExecPathResolver interface {
	ExecPath() (string, error)
}

// StaticPath always resolves to itself. Production deployments point it at
// the bundled Chromium; development at a local install.
type StaticPath string

// ExecPath implements ExecPathResolver.
func (p StaticPath) ExecPath() (string, error) {
	return string(p), nil
}

// FirstExisting resolves to the first path that exists on disk.
type FirstExisting []string

// ExecPath implements ExecPathResolver.
func (c FirstExisting) ExecPath() (string, error) {
	if len(c) == 0 {
		return "", nil
	}
	for _, p := range c {
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w (tried %s)", ErrNoBrowser, strings.Join(c, ", "))
}

// ResolverFromConfig prefers an explicit exec_path over the candidate list.
func ResolverFromConfig(cfg u.ChromeConfig) ExecPathResolver {
	if cfg.ExecPath != "" {
		return StaticPath(cfg.ExecPath)
	}
	if len(cfg.Candidates) > 0 {
		return FirstExisting(cfg.Candidates)
	}
	return StaticPath("")
}
