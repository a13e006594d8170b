//go:build !windows

package upgrade

import (
	"fmt"
	"os"
	"syscall"
)

// swapBinary atomically replaces the running binary with newBinary, keeping
// the old one at a `.old` suffix until the copy succeeds, grounded on the
// original implementation's platform/unix.rs swap_binary.
func swapBinary(currentPath, newPath string) error {
	info, err := os.Stat(currentPath)
	if err != nil {
		return fmt.Errorf("upgrade: stat current binary: %w", err)
	}
	oldPath := currentPath + ".old"

	if err := os.Rename(currentPath, oldPath); err != nil {
		return fmt.Errorf("upgrade: rename current to .old: %w", err)
	}
	if err := copyFile(newPath, currentPath); err != nil {
		_ = os.Rename(oldPath, currentPath)
		return fmt.Errorf("upgrade: copy new binary into place: %w", err)
	}
	if err := os.Chmod(currentPath, info.Mode()); err != nil {
		return fmt.Errorf("upgrade: restore mode bits: %w", err)
	}
	if err := os.Remove(oldPath); err != nil {
		return fmt.Errorf("upgrade: remove .old: %w", err)
	}
	return nil
}

// restartWithArgs replaces the current process image via exec, per the
// original implementation's restart_with_args (cmd.exec() on unix).
func restartWithArgs(binaryPath string, args []string) error {
	argv := append([]string{binaryPath}, args...)
	return syscall.Exec(binaryPath, argv, os.Environ())
}
