package parse

import (
	"bytes"
	"fmt"
	"regexp"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/understory/internal/ropeio"
)

type predOp uint8

const (
	predEq predOp = iota
	predMatch
	predAnyOf
)

// predicate is one pre-parsed #eq?/#match?/#any-of? clause (or its negated
// form). Text operands are read through the rope adapter at match time;
// capture-vs-capture equality uses the adapter's chunkwise comparison.
type predicate struct {
	op      predOp
	negate  bool
	capture uint32
	other   uint32 // right-hand capture for eq, or noCapture
	str     string
	re      *regexp.Regexp
	strs    []string
}

// parsePredicates validates the predicate steps attached to one pattern and
// splits out #set! property directives.
func (q *Query) parsePredicates(pattern uint32) ([]predicate, map[string]string, error) {
	var preds []predicate
	var props map[string]string

	for _, steps := range q.q.PredicatesForPattern(pattern) {
		if len(steps) == 0 {
			continue
		}
		if steps[0].Type != sitter.QueryPredicateStepTypeString {
			return nil, nil, fmt.Errorf("query pattern %d: predicate must begin with an operator name", pattern)
		}
		op := q.q.StringValueForId(steps[0].ValueId)
		args := steps[1:]
		if n := len(args); n > 0 && args[n-1].Type == sitter.QueryPredicateStepTypeDone {
			args = args[:n-1]
		}

		switch op {
		case "set!":
			key, value, err := q.parseSetArgs(pattern, args)
			if err != nil {
				return nil, nil, err
			}
			if props == nil {
				props = make(map[string]string)
			}
			props[key] = value

		case "eq?", "not-eq?":
			p, err := q.parseEqArgs(pattern, args)
			if err != nil {
				return nil, nil, err
			}
			p.negate = op == "not-eq?"
			preds = append(preds, p)

		case "match?", "not-match?":
			p, err := q.parseMatchArgs(pattern, args)
			if err != nil {
				return nil, nil, err
			}
			p.negate = op == "not-match?"
			preds = append(preds, p)

		case "any-of?", "not-any-of?":
			p, err := q.parseAnyOfArgs(pattern, args)
			if err != nil {
				return nil, nil, err
			}
			p.negate = op == "not-any-of?"
			preds = append(preds, p)

		default:
			return nil, nil, fmt.Errorf("query pattern %d: unsupported predicate #%s", pattern, op)
		}
	}
	return preds, props, nil
}

func (q *Query) parseSetArgs(pattern uint32, args []sitter.QueryPredicateStep) (string, string, error) {
	if len(args) == 0 || len(args) > 2 {
		return "", "", fmt.Errorf("query pattern %d: #set! expects a key and optional value", pattern)
	}
	for _, a := range args {
		if a.Type != sitter.QueryPredicateStepTypeString {
			return "", "", fmt.Errorf("query pattern %d: #set! arguments must be strings", pattern)
		}
	}
	key := q.q.StringValueForId(args[0].ValueId)
	value := ""
	if len(args) == 2 {
		value = q.q.StringValueForId(args[1].ValueId)
	}
	return key, value, nil
}

func (q *Query) parseEqArgs(pattern uint32, args []sitter.QueryPredicateStep) (predicate, error) {
	if len(args) != 2 || args[0].Type != sitter.QueryPredicateStepTypeCapture {
		return predicate{}, fmt.Errorf("query pattern %d: #eq? expects a capture and one operand", pattern)
	}
	p := predicate{op: predEq, capture: args[0].ValueId, other: noCapture}
	switch args[1].Type {
	case sitter.QueryPredicateStepTypeCapture:
		p.other = args[1].ValueId
	case sitter.QueryPredicateStepTypeString:
		p.str = q.q.StringValueForId(args[1].ValueId)
	default:
		return predicate{}, fmt.Errorf("query pattern %d: #eq? operand must be a capture or string", pattern)
	}
	return p, nil
}

func (q *Query) parseMatchArgs(pattern uint32, args []sitter.QueryPredicateStep) (predicate, error) {
	if len(args) != 2 ||
		args[0].Type != sitter.QueryPredicateStepTypeCapture ||
		args[1].Type != sitter.QueryPredicateStepTypeString {
		return predicate{}, fmt.Errorf("query pattern %d: #match? expects a capture and a pattern string", pattern)
	}
	expr := q.q.StringValueForId(args[1].ValueId)
	re, err := regexp.Compile(expr)
	if err != nil {
		return predicate{}, fmt.Errorf("query pattern %d: #match? pattern %q: %w", pattern, expr, err)
	}
	return predicate{op: predMatch, capture: args[0].ValueId, other: noCapture, re: re}, nil
}

func (q *Query) parseAnyOfArgs(pattern uint32, args []sitter.QueryPredicateStep) (predicate, error) {
	if len(args) < 2 || args[0].Type != sitter.QueryPredicateStepTypeCapture {
		return predicate{}, fmt.Errorf("query pattern %d: #any-of? expects a capture and at least one string", pattern)
	}
	p := predicate{op: predAnyOf, capture: args[0].ValueId, other: noCapture}
	for _, a := range args[1:] {
		if a.Type != sitter.QueryPredicateStepTypeString {
			return predicate{}, fmt.Errorf("query pattern %d: #any-of? operands must be strings", pattern)
		}
		p.strs = append(p.strs, q.q.StringValueForId(a.ValueId))
	}
	return p, nil
}

// patternMatches evaluates the pre-parsed predicates of a candidate match.
// Every node bound to the predicate's capture must satisfy the clause.
func (q *Query) patternMatches(m *sitter.QueryMatch, r *ropeio.Reader) bool {
	preds := q.preds[m.PatternIndex]
	if len(preds) == 0 {
		return true
	}
	for _, p := range preds {
		if !q.evalPredicate(p, m, r) {
			return false
		}
	}
	return true
}

func (q *Query) evalPredicate(p predicate, m *sitter.QueryMatch, r *ropeio.Reader) bool {
	for _, c := range m.Captures {
		if c.Index != p.capture {
			continue
		}
		ok := false
		switch p.op {
		case predEq:
			if p.other != noCapture {
				ok = q.evalCaptureEq(c.Node, p.other, m, r)
			} else {
				ok = bytes.Equal(r.Slice(c.Node.StartByte(), c.Node.EndByte()), []byte(p.str))
			}
		case predMatch:
			ok = p.re.Match(r.Slice(c.Node.StartByte(), c.Node.EndByte()))
		case predAnyOf:
			text := string(r.Slice(c.Node.StartByte(), c.Node.EndByte()))
			for _, s := range p.strs {
				if text == s {
					ok = true
					break
				}
			}
		}
		if ok == p.negate {
			return false
		}
	}
	return true
}

func (q *Query) evalCaptureEq(node *sitter.Node, other uint32, m *sitter.QueryMatch, r *ropeio.Reader) bool {
	for _, c := range m.Captures {
		if c.Index != other {
			continue
		}
		if !r.Eq(node.StartByte(), node.EndByte(), c.Node.StartByte(), c.Node.EndByte()) {
			return false
		}
	}
	return true
}
