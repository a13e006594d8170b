package safety

import (
	"context"
	"strings"
)

// InterfaceSymbols reports the exported symbols a file currently
// declares, so SemanticGate can detect a removed/renamed public symbol
// that the change did not tag as Breaking. A real implementation would
// back this with go/packages; tests supply a fake.
type InterfaceSymbols interface {
	ExportedSymbols(path string) ([]string, error)
}

// SemanticGate checks that a proposed change preserves declared
// invariants: the module still builds conceptually (no removed-without-
// replacement public symbol) unless the change is explicitly tagged
// Breaking, per spec §4.7 gate 2.
type SemanticGate struct {
	symbols InterfaceSymbols
}

// NewSemanticGate returns a SemanticGate. symbols may be nil; Evaluate does
// not consult it either way and checks only the Breaking-tag/diff-removal
// heuristic.
func NewSemanticGate(symbols InterfaceSymbols) *SemanticGate {
	return &SemanticGate{symbols: symbols}
}

func (g *SemanticGate) Name() string { return "semantic" }

func (g *SemanticGate) Evaluate(ctx context.Context, change *ProposedChange) GateResult {
	if change.Breaking {
		return result("semantic", nil)
	}

	var findings []Finding
	for _, f := range change.Files {
		if f.Op == OpDelete {
			findings = append(findings, Finding{
				Message:  "file deletion not tagged as a breaking change",
				Severity: SeverityHigh,
				Field:    f.Path,
			})
			continue
		}
		if removesExportedSymbol(f.Diff) {
			findings = append(findings, Finding{
				Message:  "diff appears to remove an exported symbol without Breaking=true",
				Severity: SeverityHigh,
				Field:    f.Path,
			})
		}
	}
	return result("semantic", findings)
}

// removesExportedSymbol is a coarse heuristic: a line removing ("-" diff
// prefix) a top-level "func Foo(" or "type Foo " declaration where Foo is
// exported (starts uppercase), with no matching addition elsewhere in the
// diff.
func removesExportedSymbol(diff string) bool {
	removed := map[string]bool{}
	added := map[string]bool{}
	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---"):
			if name, ok := exportedDeclName(line[1:]); ok {
				removed[name] = true
			}
		case strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++"):
			if name, ok := exportedDeclName(line[1:]); ok {
				added[name] = true
			}
		}
	}
	for name := range removed {
		if !added[name] {
			return true
		}
	}
	return false
}

func exportedDeclName(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	var rest string
	switch {
	case strings.HasPrefix(trimmed, "func "):
		rest = strings.TrimPrefix(trimmed, "func ")
	case strings.HasPrefix(trimmed, "type "):
		rest = strings.TrimPrefix(trimmed, "type ")
	default:
		return "", false
	}
	end := strings.IndexAny(rest, "( ")
	if end == -1 {
		end = len(rest)
	}
	name := rest[:end]
	if name == "" || name[0] < 'A' || name[0] > 'Z' {
		return "", false
	}
	return name, true
}
