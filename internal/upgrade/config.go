package upgrade

import "time"

// Config configures one Upgrader, grounded on the original implementation's
// UpgradeConfig (auto-dev-core/src/self_upgrade/mod.rs).
type Config struct {
	BinaryPath          string        `validate:"required"`
	StagingDir          string        `validate:"required"`
	BackupDir           string        `validate:"required"`
	DryRun              bool
	VerificationTimeout time.Duration `validate:"gt=0"`
	KeepVersions        int           `validate:"gt=0"`
	BuildCommand        []string      `validate:"required,min=1"`
}

// DefaultConfig matches the original implementation's Default impl,
// translated to Go-native paths and a `go build` invocation in place of
// `cargo build`.
func DefaultConfig(binaryPath string) Config {
	return Config{
		BinaryPath:          binaryPath,
		StagingDir:          ".auto-dev/staging",
		BackupDir:           ".auto-dev/backups",
		DryRun:              false,
		VerificationTimeout: 60 * time.Second,
		KeepVersions:        3,
		BuildCommand:        []string{"go", "build", "-o"},
	}
}
