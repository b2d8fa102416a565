// Package rules loads declarative classifier rule sets and
// documentation claim sets from CUE files.
//
// Rule tables live in data, not code: an operator can reload an updated
// rule set without rebuilding the engine. A built-in default rule set
// covering the usual unrelated-defect categories ships embedded.
package rules

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/gatewright/internal/classify"
	"github.com/roach88/gatewright/internal/reconcile"
	"github.com/roach88/gatewright/internal/wf"
)

// CompileRules parses a CUE value holding a top-level "rules" list into
// a compiled rule set. Uses the CUE SDK's Go API directly (not a CLI
// subprocess).
//
// Expected shape:
//
//	rules: [
//	  {name: "...", pattern: "...", category: "...", severity: "high", ...},
//	]
func CompileRules(v cue.Value) (*classify.RuleSet, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	rulesVal := v.LookupPath(cue.ParsePath("rules"))
	if !rulesVal.Exists() {
		return nil, &CompileError{
			Field:   "rules",
			Message: "rules list is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := rulesVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var parsed []classify.Rule
	for iter.Next() {
		rule, err := parseRule(iter.Value())
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, rule)
	}
	if len(parsed) == 0 {
		return nil, &CompileError{
			Field:   "rules",
			Message: "at least one rule is required",
			Pos:     rulesVal.Pos(),
		}
	}

	rs, err := classify.NewRuleSet(parsed)
	if err != nil {
		return nil, &CompileError{
			Field:   "rules",
			Message: err.Error(),
			Pos:     rulesVal.Pos(),
		}
	}
	return rs, nil
}

func parseRule(v cue.Value) (classify.Rule, error) {
	var rule classify.Rule

	name, err := requiredString(v, "name")
	if err != nil {
		return rule, err
	}
	rule.Name = name

	pattern, err := requiredString(v, "pattern")
	if err != nil {
		return rule, err
	}
	rule.Pattern = pattern

	category, err := requiredString(v, "category")
	if err != nil {
		return rule, err
	}
	rule.Category = category

	sevStr, err := requiredString(v, "severity")
	if err != nil {
		return rule, err
	}
	sev, err := wf.ParseSeverity(sevStr)
	if err != nil {
		return rule, &CompileError{
			Field:   "severity",
			Message: err.Error(),
			Pos:     v.LookupPath(cue.ParsePath("severity")).Pos(),
		}
	}
	rule.Severity = sev

	rule.Description, err = optionalString(v, "description")
	if err != nil {
		return rule, err
	}
	rule.RecommendedFix, err = optionalString(v, "recommended_fix")
	if err != nil {
		return rule, err
	}

	return rule, nil
}

// CompileClaims parses a CUE value holding a top-level "claims" list.
//
// Expected shape:
//
//	claims: [
//	  {claim_ref: "docs/api.md#users", symbol: "create_user", expected: "exists"},
//	]
func CompileClaims(v cue.Value) ([]reconcile.Claim, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	claimsVal := v.LookupPath(cue.ParsePath("claims"))
	if !claimsVal.Exists() {
		return nil, &CompileError{
			Field:   "claims",
			Message: "claims list is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := claimsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var claims []reconcile.Claim
	for iter.Next() {
		cv := iter.Value()
		claimRef, err := requiredString(cv, "claim_ref")
		if err != nil {
			return nil, err
		}
		symbol, err := requiredString(cv, "symbol")
		if err != nil {
			return nil, err
		}
		expected, err := requiredString(cv, "expected")
		if err != nil {
			return nil, err
		}
		claims = append(claims, reconcile.Claim{
			ClaimRef: claimRef,
			Symbol:   symbol,
			Expected: expected,
		})
	}

	return claims, nil
}

// LoadRulesFile compiles a rule set from a CUE file on disk.
func LoadRulesFile(path string) (*classify.RuleSet, error) {
	v, err := compileFile(path)
	if err != nil {
		return nil, err
	}
	return CompileRules(v)
}

// LoadClaimsFile compiles a claim set from a CUE file on disk.
func LoadClaimsFile(path string) ([]reconcile.Claim, error) {
	v, err := compileFile(path)
	if err != nil {
		return nil, err
	}
	return CompileClaims(v)
}

func compileFile(path string) (cue.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, fmt.Errorf("load %s: %w", path, err)
	}

	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return cue.Value{}, formatCUEError(err)
	}
	return v, nil
}

func requiredString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", &CompileError{
			Field:   field,
			Message: field + " is required",
			Pos:     v.Pos(),
		}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}
