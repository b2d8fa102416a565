package rules

import (
	_ "embed"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/gatewright/internal/classify"
)

//go:embed defaults.cue
var defaultsCUE []byte

// DefaultRuleSet compiles the embedded built-in rule set. The embedded
// source is validated at test time, so a compile failure here means the
// binary itself is corrupt.
func DefaultRuleSet() (*classify.RuleSet, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(defaultsCUE, cue.Filename("defaults.cue"))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileRules(v)
}
