package upgrade

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/autodevd/daemon/internal/distlock"
)

// AuditRecorder is the narrow interface the upgrader needs from the audit
// trail, the same decoupling seam internal/reload and internal/sandbox use
// so this package never imports internal/audit directly.
type AuditRecorder interface {
	Append(ctx context.Context, action, initiator, result, payloadRef string) error
}

// Result is the outcome of one self-upgrade attempt.
type Result struct {
	Success    bool
	DryRun     bool
	FinalPhase Phase
	BackupPath string
	StagedPath string
	Duration   time.Duration
	RolledBack bool
	Err        error
}

// Upgrader drives the Compile -> Verify -> Backup -> Swap -> Restart ->
// Running state machine, grounded on the original implementation's
// SelfUpgrader.execute (auto-dev-core/src/self_upgrade/upgrader.rs).
type Upgrader struct {
	cfg      Config
	verifier *Verifier
	backups  *BackupManager
	state    *StatePreserver
	locks    *distlock.Manager
	audit    AuditRecorder
	logger   *slog.Logger

	phase Phase
}

// swapBinaryFn and restartWithArgsFn are indirected through package-level
// vars so tests can substitute a no-op for the platform-specific swap/exec,
// which otherwise replaces the calling process image.
var (
	swapBinaryFn      = swapBinary
	restartWithArgsFn = restartWithArgs
)

// Deps bundles an Upgrader's collaborators.
type Deps struct {
	Config Config
	Locks  *distlock.Manager // nil disables cross-instance mutual exclusion
	Audit  AuditRecorder
	Logger *slog.Logger
}

func NewUpgrader(d Deps) *Upgrader {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Upgrader{
		cfg:      d.Config,
		verifier: NewVerifier(d.Config.VerificationTimeout),
		backups:  NewBackupManager(d.Config.BinaryPath, d.Config.BackupDir, d.Config.KeepVersions, d.Logger),
		state:    NewStatePreserver(d.Config.StagingDir),
		locks:    d.Locks,
		audit:    d.Audit,
		logger:   d.Logger.With("component", "upgrader"),
		phase:    PhaseIdle,
	}
}

// Phase reports the upgrader's current phase.
func (u *Upgrader) Phase() Phase {
	return u.phase
}

func (u *Upgrader) lockKey() string {
	sum := sha256.Sum256([]byte(u.cfg.BinaryPath))
	return fmt.Sprintf("self-upgrade:%s", hex.EncodeToString(sum[:8]))
}

// Run executes one full self-upgrade attempt. version is the new version
// string to embed in the handoff state; activeTasks and extraConfig are
// carried across the restart verbatim.
func (u *Upgrader) Run(ctx context.Context, version string, activeTasks []string, extraConfig map[string]any) *Result {
	start := time.Now()
	res := &Result{DryRun: u.cfg.DryRun}

	if u.locks != nil {
		lock, err := u.locks.Acquire(ctx, u.lockKey(), distlock.DefaultConfig())
		if err != nil {
			res.Err = fmt.Errorf("upgrade: acquire lock: %w", err)
			res.FinalPhase = PhaseAborted
			res.Duration = time.Since(start)
			return res
		}
		if lock == nil {
			res.Err = ErrUpgradeLocked
			res.FinalPhase = PhaseAborted
			res.Duration = time.Since(start)
			return res
		}
		defer lock.Release(ctx)
	}

	u.phase = PhaseCompiling
	stagedPath, err := u.compile(ctx)
	if err != nil {
		res.Err = fmt.Errorf("%w: %v", ErrCompileFailed, err)
		res.FinalPhase = PhaseAborted
		res.Duration = time.Since(start)
		u.abort(ctx, "compile_failed", err)
		return res
	}
	res.StagedPath = stagedPath

	u.phase = PhaseVerifying
	if err := u.verifier.Verify(ctx, stagedPath); err != nil {
		res.Err = err
		res.FinalPhase = PhaseAborted
		res.Duration = time.Since(start)
		u.abort(ctx, "verification_failed", err)
		return res
	}

	u.phase = PhaseBackingUp
	backupPath, err := u.backups.Create()
	if err != nil {
		res.Err = fmt.Errorf("upgrade: backup: %w", err)
		res.FinalPhase = PhaseAborted
		res.Duration = time.Since(start)
		u.abort(ctx, "backup_failed", err)
		return res
	}
	res.BackupPath = backupPath

	if u.cfg.DryRun {
		res.Success = true
		res.FinalPhase = PhaseRunning
		res.Duration = time.Since(start)
		u.logger.Info("upgrade: dry run complete, no swap performed", "staged", stagedPath, "backup", backupPath)
		return res
	}

	statePath, err := u.state.Save(State{
		Timestamp:   start.Format(time.RFC3339),
		Version:     version,
		ActiveTasks: activeTasks,
		Config:      extraConfig,
		Environment: currentEnviron(),
	})
	if err != nil {
		res.Err = fmt.Errorf("upgrade: save handoff state: %w", err)
		res.FinalPhase = PhaseAborted
		res.Duration = time.Since(start)
		u.abort(ctx, "state_save_failed", err)
		return res
	}

	u.phase = PhaseSwapping
	if err := swapBinaryFn(u.cfg.BinaryPath, stagedPath); err != nil {
		res.Err = fmt.Errorf("upgrade: swap: %w", err)
		res.FinalPhase = PhaseRollingBack
		res.Duration = time.Since(start)
		if rbErr := u.rollback(ctx, backupPath); rbErr != nil {
			res.Err = fmt.Errorf("%w (rollback also failed: %v)", res.Err, rbErr)
		} else {
			res.RolledBack = true
		}
		u.recordAudit(ctx, "upgrade-rolled-back", "failure", backupPath)
		return res
	}

	u.phase = PhaseRestarting
	u.recordAudit(ctx, "upgrade-swapped", "success", stagedPath)
	if err := restartWithArgsFn(u.cfg.BinaryPath, []string{"--restore-state", statePath}); err != nil {
		res.Err = fmt.Errorf("upgrade: restart: %w", err)
		res.FinalPhase = PhaseRollingBack
		res.Duration = time.Since(start)
		if rbErr := u.rollback(ctx, backupPath); rbErr != nil {
			res.Err = fmt.Errorf("%w (rollback also failed: %v)", res.Err, rbErr)
		} else {
			res.RolledBack = true
		}
		return res
	}

	res.Success = true
	res.FinalPhase = PhaseRunning
	res.Duration = time.Since(start)
	return res
}

func (u *Upgrader) abort(ctx context.Context, reason string, cause error) {
	u.phase = PhaseAborted
	u.recordAudit(ctx, "upgrade-aborted", reason, cause.Error())
}

func (u *Upgrader) recordAudit(ctx context.Context, action, result, payloadRef string) {
	if u.audit == nil {
		return
	}
	if err := u.audit.Append(ctx, action, "self-upgrade", result, payloadRef); err != nil {
		u.logger.Warn("upgrade: audit append failed", "error", err)
	}
}

func (u *Upgrader) rollback(ctx context.Context, backupPath string) error {
	u.phase = PhaseRollingBack
	if err := copyFile(backupPath, u.cfg.BinaryPath); err != nil {
		return fmt.Errorf("upgrade: restore backup: %w", err)
	}
	return nil
}

// compile invokes the configured build command to produce a staged binary
// and copies it into StagingDir, grounded on the original implementation's
// SelfUpgrader.compile_new_version.
func (u *Upgrader) compile(ctx context.Context) (string, error) {
	if len(u.cfg.BuildCommand) == 0 {
		return "", fmt.Errorf("upgrade: no build command configured")
	}
	if err := os.MkdirAll(u.cfg.StagingDir, 0o755); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	stagedPath := filepath.Join(u.cfg.StagingDir, "daemon_staged")

	args := append([]string{}, u.cfg.BuildCommand[1:]...)
	args = append(args, stagedPath)

	cmd := exec.CommandContext(ctx, u.cfg.BuildCommand[0], args...)
	cmd.Dir = filepath.Dir(u.cfg.BinaryPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("%s: %w", string(out), err)
	}
	return stagedPath, nil
}

// currentEnviron snapshots the process environment as a map for handoff.
func currentEnviron() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		env[parts[0]] = parts[1]
	}
	return env
}
