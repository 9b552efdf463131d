package vm

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// CreateDisk creates the qcow2 output disk a build installs onto, using
// qemu-img so the file is sparse until the installer writes into it.
func CreateDisk(path string, sizeGiB uint) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create disk directory: %w", err)
	}

	cmd := exec.Command(
		"qemu-img", "create",
		"-f", "qcow2",
		path,
		fmt.Sprintf("%dG", sizeGiB),
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("qemu-img create failed: %w (output: %s)", err, output)
	}
	return nil
}
