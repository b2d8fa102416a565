// Package classify implements the rule-based finding classifier.
//
// Classification is a pure, deterministic function: the same artifact
// and the same rule set always produce candidates with identical
// fingerprints. The classifier never mutates run state - it only
// returns candidates for the engine to register, and registration is
// idempotent on the fingerprint.
package classify

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/gatewright/internal/wf"
)

// Rule is one declarative classification rule. Rules declare their own
// severity; the classifier never downgrades or upgrades it.
type Rule struct {
	Name           string
	Pattern        string
	Category       string
	Severity       wf.Severity
	Description    string
	RecommendedFix string

	re *regexp.Regexp
}

// RuleSet is an ordered, compiled list of rules. Declaration order only
// matters for deduplication tie-breaks: when two rules of equal
// severity match the same line, the earlier-declared rule wins.
type RuleSet struct {
	rules []Rule
}

// NewRuleSet compiles the given rules into a RuleSet. Every rule must
// have a name, a valid regular expression, a category, and a known
// severity.
func NewRuleSet(rules []Rule) (*RuleSet, error) {
	compiled := make([]Rule, len(rules))
	seen := make(map[string]bool, len(rules))
	for i, r := range rules {
		if r.Name == "" {
			return nil, fmt.Errorf("rule %d: name is required", i)
		}
		if seen[r.Name] {
			return nil, fmt.Errorf("rule %q: duplicate name", r.Name)
		}
		seen[r.Name] = true
		if r.Category == "" {
			return nil, fmt.Errorf("rule %q: category is required", r.Name)
		}
		if _, err := wf.ParseSeverity(string(r.Severity)); err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %q: invalid pattern: %w", r.Name, err)
		}
		r.re = re
		compiled[i] = r
	}
	return &RuleSet{rules: compiled}, nil
}

// Rules returns the rule list in declaration order.
func (rs *RuleSet) Rules() []Rule {
	out := make([]Rule, len(rs.rules))
	copy(out, rs.rules)
	return out
}

// Artifact is one unit of scannable content. LocationRef is an opaque
// pointer into the pattern catalog (typically a file path); the
// classifier appends line numbers but never interprets the reference.
type Artifact struct {
	LocationRef string
	Text        string
}

// Classify scans one artifact against the rule set and returns finding
// candidates with Decision set to Pending.
//
// Matching runs every rule against every line, so classification is
// rule-order-independent. Deduplication is per (LocationRef, Line)
// span and first-match-wins by severity: only the highest-severity
// match for a span is kept, ties broken by the earliest-declared rule.
// Candidates come back ordered by line so repeated scans produce the
// same slice.
//
// An artifact that cannot be analyzed (invalid UTF-8) degrades to a
// single low-severity candidate with CategoryAnalysisIncomplete
// instead of failing the scan.
func (rs *RuleSet) Classify(a Artifact) ([]wf.Finding, error) {
	if !utf8.ValidString(a.Text) {
		return degradedCandidates(a.LocationRef, "artifact is not valid UTF-8")
	}

	// span line -> index of winning rule
	winners := make(map[int]int)

	lines := strings.Split(a.Text, "\n")
	for lineIdx, line := range lines {
		lineNum := lineIdx + 1
		for ruleIdx, rule := range rs.rules {
			if !rule.re.MatchString(line) {
				continue
			}
			prev, taken := winners[lineNum]
			if !taken {
				winners[lineNum] = ruleIdx
				continue
			}
			// Higher severity wins; equal severity keeps the
			// earlier-declared rule.
			if rule.Severity.Rank() > rs.rules[prev].Severity.Rank() {
				winners[lineNum] = ruleIdx
			}
		}
	}

	spans := make([]int, 0, len(winners))
	for line := range winners {
		spans = append(spans, line)
	}
	sort.Ints(spans)

	candidates := make([]wf.Finding, 0, len(spans))
	for _, line := range spans {
		rule := rs.rules[winners[line]]
		id, err := wf.FindingFingerprint(a.LocationRef, line, rule.Category)
		if err != nil {
			return nil, fmt.Errorf("classify %s: %w", a.LocationRef, err)
		}
		candidates = append(candidates, wf.Finding{
			ID:             id,
			LocationRef:    a.LocationRef,
			Line:           line,
			Category:       rule.Category,
			Severity:       rule.Severity,
			Description:    rule.Description,
			RecommendedFix: rule.RecommendedFix,
			Decision:       wf.DecisionPending,
		})
	}

	return candidates, nil
}

// degradedCandidates builds the single AnalysisIncomplete candidate for
// an unscannable artifact.
func degradedCandidates(locationRef, reason string) ([]wf.Finding, error) {
	id, err := wf.FindingFingerprint(locationRef, 0, wf.CategoryAnalysisIncomplete)
	if err != nil {
		return nil, fmt.Errorf("classify %s: %w", locationRef, err)
	}
	return []wf.Finding{{
		ID:          id,
		LocationRef: locationRef,
		Line:        0,
		Category:    wf.CategoryAnalysisIncomplete,
		Severity:    wf.SeverityLow,
		Description: reason,
		Decision:    wf.DecisionPending,
	}}, nil
}

// DefaultScanConcurrency bounds the scan worker pool.
const DefaultScanConcurrency = 8

// ScanArtifacts classifies independent artifacts concurrently over a
// bounded worker pool. Artifacts share no mutable state, so the only
// coordination is collecting results; candidates are returned in
// artifact order regardless of completion order, which keeps the
// overall scan deterministic.
func (rs *RuleSet) ScanArtifacts(ctx context.Context, artifacts []Artifact, concurrency int) ([]wf.Finding, error) {
	if concurrency <= 0 {
		concurrency = DefaultScanConcurrency
	}

	results := make([][]wf.Finding, len(artifacts))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, artifact := range artifacts {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			candidates, err := rs.Classify(artifact)
			if err != nil {
				return err
			}
			results[i] = candidates
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scan artifacts: %w", err)
	}

	var all []wf.Finding
	for _, candidates := range results {
		all = append(all, candidates...)
	}
	return all, nil
}
