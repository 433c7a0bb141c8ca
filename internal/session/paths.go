package session

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// lookPath returns the first candidate that exists, either as an absolute
// path or on PATH.
func lookPath(candidates []string) (string, error) {
	for _, c := range candidates {
		if filepath.IsAbs(c) {
			if _, err := os.Stat(c); err == nil {
				return c, nil
			}
			continue
		}
		if p, err := exec.LookPath(c); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("browser binary not found, tried %v", candidates)
}
