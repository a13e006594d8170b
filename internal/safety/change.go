// Package safety implements the Safety Gatekeeper (spec component C9): a
// chain of validation gates applied to any proposed code modification
// before it reaches disk.
package safety

// ChangeOp is the kind of filesystem operation a FileChange performs.
type ChangeOp string

const (
	OpCreate ChangeOp = "create"
	OpModify ChangeOp = "modify"
	OpDelete ChangeOp = "delete"
)

// FileChange is one file-level edit within a ProposedChange, validated
// structurally by the static gate's go-playground/validator tags.
type FileChange struct {
	Path      string   `validate:"required"`
	Op        ChangeOp `validate:"required,oneof=create modify delete"`
	Diff      string
	LineCount int `validate:"gte=0"`
}

// ProposedChange is a candidate modification to the daemon's own source
// or a module's source, submitted by the Decision Engine/Orchestrator for
// gate evaluation before it is written to disk.
type ProposedChange struct {
	ID          string       `validate:"required"`
	Initiator   string       `validate:"required"`
	Files       []FileChange `validate:"required,min=1,dive"`
	Breaking    bool
	NewDeps     []string
	EstimatedMS int64 `validate:"gte=0"`
}
