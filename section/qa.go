package section

import (
	"errors"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/c360studio/reportengine/config"
)

// ErrInvalidRule is returned for a QA rule that does not compile.
var ErrInvalidRule = errors.New("invalid QA rule")

type compiledRule struct {
	rule    config.QARule
	program *vm.Program
}

// QA checks payloads against built-in rules and configured expressions.
// Expressions see section, data, narrative, report_type, evidence_count
// and version, and must evaluate to true for the payload to pass.
type QA struct {
	rules []compiledRule
}

// qaEnv is the compile-time shape of the expression environment.
func qaEnv() map[string]any {
	return map[string]any{
		"section":        "",
		"data":           map[string]any{},
		"narrative":      "",
		"report_type":    "",
		"evidence_count": 0,
		"version":        0,
	}
}

// NewQA compiles rules.
func NewQA(rules []config.QARule) (*QA, error) {
	q := &QA{}
	for _, r := range rules {
		program, err := expr.Compile(r.Expr, expr.Env(qaEnv()), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRule, r.Name, err)
		}
		q.rules = append(q.rules, compiledRule{rule: r, program: program})
	}
	return q, nil
}

// Check returns the QA flags raised by p. Renderer flags already on the
// payload are not repeated.
func (q *QA) Check(p *Payload) []QAFlag {
	var flags []QAFlag

	if strings.TrimSpace(p.Narrative) == "" {
		flags = append(flags, QAFlag{Rule: "narrative-empty", Severity: SeverityError, Message: "narrative is empty"})
	}
	if def, ok := Lookup(p.SectionID); ok {
		for _, key := range def.Required {
			if _, present := p.Data[key]; !present {
				flags = append(flags, QAFlag{
					Rule:     "required-" + key,
					Severity: SeverityError,
					Message:  fmt.Sprintf("data key %q is missing", key),
				})
			}
		}
	}

	if q == nil {
		return flags
	}
	env := map[string]any{
		"section":        string(p.SectionID),
		"data":           p.Data,
		"narrative":      p.Narrative,
		"report_type":    string(p.ReportType),
		"evidence_count": len(p.Provenance.EvidenceIDs),
		"version":        p.Version,
	}
	for _, c := range q.rules {
		if c.rule.Section != "" && !strings.EqualFold(c.rule.Section, string(p.SectionID)) {
			continue
		}
		severity := Severity(c.rule.Severity)
		if severity == "" {
			severity = SeverityWarning
		}
		out, err := expr.Run(c.program, env)
		if err != nil {
			flags = append(flags, QAFlag{Rule: c.rule.Name, Severity: severity, Message: fmt.Sprintf("rule failed to evaluate: %v", err)})
			continue
		}
		if pass, _ := out.(bool); !pass {
			flags = append(flags, QAFlag{Rule: c.rule.Name, Severity: severity, Message: orDefault(c.rule.Message, "rule "+c.rule.Name+" failed")})
		}
	}
	return flags
}

// Apply adds the flags from Check to p, skipping rules already flagged.
func (q *QA) Apply(p *Payload) {
	seen := map[string]bool{}
	for _, f := range p.QAFlags {
		seen[f.Rule] = true
	}
	for _, f := range q.Check(p) {
		if !seen[f.Rule] {
			p.QAFlags = append(p.QAFlags, f)
			seen[f.Rule] = true
		}
	}
}
