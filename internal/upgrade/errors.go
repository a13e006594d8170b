package upgrade

import "errors"

var (
	// ErrCompileFailed is returned when the staging build fails.
	ErrCompileFailed = errors.New("upgrade: compile failed")
	// ErrVerificationFailed is returned when a staged binary fails any probe.
	ErrVerificationFailed = errors.New("upgrade: staged binary failed verification")
	// ErrNoBackupAvailable is returned when Rollback is attempted with no
	// backup on disk to restore.
	ErrNoBackupAvailable = errors.New("upgrade: no backup available for rollback")
	// ErrUpgradeLocked is returned when another instance already holds the
	// cross-instance self-upgrade lock.
	ErrUpgradeLocked = errors.New("upgrade: another instance is already upgrading this binary")
)
