package style

import (
	"encoding/json"
	"fmt"

	"github.com/nullisland/tilekit/errs"
)

// Tristate is the result of evaluating a Filter: three-valued logic per
// spec.md §4.5 — an unrecognised operator or a missing property must be
// distinguishable from a hard true/false so the prune driver can apply its
// own unknown-filter policy.
type Tristate int

const (
	False Tristate = iota
	True
	Unknown
)

// Not negates True/False and preserves Unknown.
func (t Tristate) Not() Tristate {
	switch t {
	case True:
		return False
	case False:
		return True
	default:
		return Unknown
	}
}

// maxFilterDepth guards against runaway recursion on malicious/adversarial
// style documents (spec.md §9).
const maxFilterDepth = 64

// FilterKind tags a Filter's evaluation rule.
type FilterKind int

const (
	FilterUnknown FilterKind = iota
	FilterEq
	FilterNeq
	FilterIn
	FilterNotIn
	FilterHas
	FilterNotHas
	FilterAll
	FilterAny
	FilterNone
	FilterNot
)

// selectorKind names what a Filter's leaf compares: a feature property, the
// geometry type, or the evaluation zoom.
type selectorKind int

const (
	selectorProperty selectorKind = iota
	selectorGeometryType
	selectorZoom
)

type selector struct {
	kind selectorKind
	name string // property name, only meaningful for selectorProperty
}

// Filter is a node in the mutually recursive Filter/Expr tagged-union tree
// (spec.md §9): leaves select a property/geometry-type/zoom and compare it
// to a literal, set of literals, or an Expr; interior nodes combine child
// filters with All/Any/None/Not.
type Filter struct {
	Kind     FilterKind
	Select   selector
	Literal  interface{}
	Values   []interface{}
	RHS      *Expr
	Children []*Filter
	Child    *Filter
}

// Feature is the minimal view over an MVT feature a Filter needs.
type Feature interface {
	Property(name string) (interface{}, bool)
	GeometryType() string
}

// Eval evaluates f against feature at zoom z, per spec.md §4.5's rules.
func Eval(f *Filter, feature Feature, z uint8) Tristate {
	return evalDepth(f, feature, z, 0)
}

func evalDepth(f *Filter, feature Feature, z uint8, depth int) Tristate {
	if f == nil || depth > maxFilterDepth {
		return Unknown
	}

	switch f.Kind {
	case FilterEq, FilterNeq:
		lhs, ok := selectValue(f.Select, feature, z)
		if !ok {
			return Unknown
		}
		rhs := f.Literal
		if f.RHS != nil {
			v, known := evalExpr(f.RHS, feature, z, depth+1)
			if !known {
				return Unknown
			}
			rhs = v
		}
		eq := comparable(lhs, rhs) && lhs == rhs
		if f.Kind == FilterEq {
			return boolTri(eq)
		}
		return boolTri(!eq)

	case FilterIn, FilterNotIn:
		lhs, ok := selectValue(f.Select, feature, z)
		if !ok {
			return Unknown
		}
		found := false
		for _, v := range f.Values {
			if comparable(lhs, v) && lhs == v {
				found = true
				break
			}
		}
		if f.Kind == FilterIn {
			return boolTri(found)
		}
		return boolTri(!found)

	case FilterHas, FilterNotHas:
		if f.Select.kind == selectorGeometryType || f.Select.kind == selectorZoom {
			// $type/zoom are always present on a feature, so Has is
			// always true and NotHas is always false.
			return boolTri(f.Kind == FilterHas)
		}
		_, ok := feature.Property(f.Select.name)
		if f.Kind == FilterHas {
			return boolTri(ok)
		}
		return boolTri(!ok)

	case FilterAll:
		return combineAll(f.Children, feature, z, depth)
	case FilterAny:
		return combineAny(f.Children, feature, z, depth)
	case FilterNone:
		return combineAll(f.Children, feature, z, depth).invertNone(f.Children, feature, z, depth)
	case FilterNot:
		return evalDepth(f.Child, feature, z, depth+1).Not()
	default:
		return Unknown
	}
}

// invertNone evaluates a None filter over children; its receiver is
// ignored. None is defined as "False if any child True, else Unknown if
// any Unknown, else True".
func (t Tristate) invertNone(children []*Filter, feature Feature, z uint8, depth int) Tristate {
	sawUnknown := false
	for _, c := range children {
		switch evalDepth(c, feature, z, depth+1) {
		case True:
			return False
		case Unknown:
			sawUnknown = true
		}
	}
	if sawUnknown {
		return Unknown
	}
	return True
}

func combineAll(children []*Filter, feature Feature, z uint8, depth int) Tristate {
	sawUnknown := false
	for _, c := range children {
		switch evalDepth(c, feature, z, depth+1) {
		case False:
			return False
		case Unknown:
			sawUnknown = true
		}
	}
	if sawUnknown {
		return Unknown
	}
	return True
}

func combineAny(children []*Filter, feature Feature, z uint8, depth int) Tristate {
	sawUnknown := false
	for _, c := range children {
		switch evalDepth(c, feature, z, depth+1) {
		case True:
			return True
		case Unknown:
			sawUnknown = true
		}
	}
	if sawUnknown {
		return Unknown
	}
	return False
}

func boolTri(b bool) Tristate {
	if b {
		return True
	}
	return False
}

func comparable(a, b interface{}) bool {
	switch a.(type) {
	case float64, string, bool:
	default:
		return false
	}
	switch b.(type) {
	case float64, string, bool:
	default:
		return false
	}
	return fmt.Sprintf("%T", a) == fmt.Sprintf("%T", b)
}

func selectValue(s selector, feature Feature, z uint8) (interface{}, bool) {
	switch s.kind {
	case selectorProperty:
		return feature.Property(s.name)
	case selectorGeometryType:
		return feature.GeometryType(), true
	case selectorZoom:
		return float64(z), true
	default:
		return nil, false
	}
}

// ExprKind tags an Expr node. Expressions appear on the right-hand side of
// Eq/Neq comparisons (spec.md §4.5).
type ExprKind int

const (
	ExprLiteral ExprKind = iota
	ExprGet
	ExprZoom
	ExprGeometryType
	ExprCoalesce
	ExprMatch
	ExprCase
)

// matchCase is one (values, output) arm of a `match` expression.
type matchCase struct {
	values []interface{}
	output *Expr
}

// caseClause is one (condition, output) arm of a `case` expression.
type caseClause struct {
	condition *Filter
	output    *Expr
}

// Expr is the other half of the mutually recursive Filter/Expr tagged
// union (spec.md §9).
type Expr struct {
	Kind      ExprKind
	Literal   interface{}
	Property  string
	Operands  []*Expr
	Input     *Expr
	Cases     []matchCase
	Clauses   []caseClause
	Default   *Expr
}

// evalExpr evaluates e against feature at zoom z. The second return value
// is false when the expression's value is indeterminate (e.g. `get` on a
// missing property), which callers treat as Unknown.
func evalExpr(e *Expr, feature Feature, z uint8, depth int) (interface{}, bool) {
	if e == nil || depth > maxFilterDepth {
		return nil, false
	}

	switch e.Kind {
	case ExprLiteral:
		return e.Literal, true
	case ExprGet:
		return feature.Property(e.Property)
	case ExprZoom:
		return float64(z), true
	case ExprGeometryType:
		return feature.GeometryType(), true
	case ExprCoalesce:
		for _, op := range e.Operands {
			if v, ok := evalExpr(op, feature, z, depth+1); ok {
				return v, true
			}
		}
		return nil, false
	case ExprMatch:
		input, ok := evalExpr(e.Input, feature, z, depth+1)
		if !ok {
			return nil, false // Unknown condition short-circuits to None, not fallback
		}
		for _, c := range e.Cases {
			for _, v := range c.values {
				if comparable(input, v) && input == v {
					return evalExpr(c.output, feature, z, depth+1)
				}
			}
		}
		if e.Default != nil {
			return evalExpr(e.Default, feature, z, depth+1)
		}
		return nil, false
	case ExprCase:
		for _, clause := range e.Clauses {
			switch evalDepth(clause.condition, feature, z, depth+1) {
			case True:
				return evalExpr(clause.output, feature, z, depth+1)
			case Unknown:
				return nil, false // short-circuit to None
			}
		}
		if e.Default != nil {
			return evalExpr(e.Default, feature, z, depth+1)
		}
		return nil, false
	default:
		return nil, false
	}
}

// parseFilter decodes a filter expression of the form
// ["==", "class", "primary"], ["all", f1, f2, ...], etc.
func parseFilter(raw json.RawMessage) (*Filter, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil, errs.New(errs.StyleParse, err)
	}
	if len(arr) == 0 {
		return &Filter{Kind: FilterUnknown}, nil
	}

	var op string
	if err := json.Unmarshal(arr[0], &op); err != nil {
		return nil, errs.New(errs.StyleParse, err)
	}

	switch op {
	case "==", "!=":
		sel, err := parseSelectorArg(arr[1])
		if err != nil {
			return nil, err
		}
		lit, rhsExpr, err := parseComparisonRHS(arr[2])
		if err != nil {
			return nil, err
		}
		kind := FilterEq
		if op == "!=" {
			kind = FilterNeq
		}
		return &Filter{Kind: kind, Select: sel, Literal: lit, RHS: rhsExpr}, nil

	case "in", "!in":
		sel, err := parseSelectorArg(arr[1])
		if err != nil {
			return nil, err
		}
		values := make([]interface{}, 0, len(arr)-2)
		for _, raw := range arr[2:] {
			var v interface{}
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, errs.New(errs.StyleParse, err)
			}
			values = append(values, v)
		}
		kind := FilterIn
		if op == "!in" {
			kind = FilterNotIn
		}
		return &Filter{Kind: kind, Select: sel, Values: values}, nil

	case "has", "!has":
		sel, err := parseSelectorArg(arr[1])
		if err != nil {
			return nil, err
		}
		kind := FilterHas
		if op == "!has" {
			kind = FilterNotHas
		}
		return &Filter{Kind: kind, Select: sel}, nil

	case "all", "any", "none":
		children := make([]*Filter, 0, len(arr)-1)
		for _, raw := range arr[1:] {
			child, err := parseFilter(raw)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		kind := FilterAll
		if op == "any" {
			kind = FilterAny
		} else if op == "none" {
			kind = FilterNone
		}
		return &Filter{Kind: kind, Children: children}, nil

	case "!":
		child, err := parseFilter(arr[1])
		if err != nil {
			return nil, err
		}
		return &Filter{Kind: FilterNot, Child: child}, nil

	default:
		return &Filter{Kind: FilterUnknown}, nil
	}
}

func parseSelectorArg(raw json.RawMessage) (selector, error) {
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		return selector{}, errs.New(errs.StyleParse, err)
	}
	switch name {
	case "$type":
		return selector{kind: selectorGeometryType}, nil
	case "zoom":
		return selector{kind: selectorZoom}, nil
	default:
		return selector{kind: selectorProperty, name: name}, nil
	}
}

func parseComparisonRHS(raw json.RawMessage) (interface{}, *Expr, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil && len(arr) > 0 {
		var op string
		if err := json.Unmarshal(arr[0], &op); err == nil {
			switch op {
			case "get", "zoom", "geometry-type", "coalesce", "match", "case":
				e, err := parseExpr(raw)
				if err != nil {
					return nil, nil, err
				}
				return nil, e, nil
			}
		}
	}

	var lit interface{}
	if err := json.Unmarshal(raw, &lit); err != nil {
		return nil, nil, errs.New(errs.StyleParse, err)
	}
	return lit, nil, nil
}

func parseExpr(raw json.RawMessage) (*Expr, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		var lit interface{}
		if err := json.Unmarshal(raw, &lit); err != nil {
			return nil, errs.New(errs.StyleParse, err)
		}
		return &Expr{Kind: ExprLiteral, Literal: lit}, nil
	}
	if len(arr) == 0 {
		return &Expr{Kind: ExprLiteral}, nil
	}

	var op string
	if err := json.Unmarshal(arr[0], &op); err != nil {
		var lit interface{}
		json.Unmarshal(raw, &lit)
		return &Expr{Kind: ExprLiteral, Literal: lit}, nil
	}

	switch op {
	case "get":
		var prop string
		if err := json.Unmarshal(arr[1], &prop); err != nil {
			return nil, errs.New(errs.StyleParse, err)
		}
		return &Expr{Kind: ExprGet, Property: prop}, nil
	case "zoom":
		return &Expr{Kind: ExprZoom}, nil
	case "geometry-type":
		return &Expr{Kind: ExprGeometryType}, nil
	case "coalesce":
		ops := make([]*Expr, 0, len(arr)-1)
		for _, raw := range arr[1:] {
			e, err := parseExpr(raw)
			if err != nil {
				return nil, err
			}
			ops = append(ops, e)
		}
		return &Expr{Kind: ExprCoalesce, Operands: ops}, nil
	case "match":
		input, err := parseExpr(arr[1])
		if err != nil {
			return nil, err
		}
		rest := arr[2:]
		var cases []matchCase
		var def *Expr
		for i := 0; i+1 < len(rest); i += 2 {
			var values []interface{}
			var single interface{}
			if err := json.Unmarshal(rest[i], &values); err != nil {
				if err := json.Unmarshal(rest[i], &single); err != nil {
					return nil, errs.New(errs.StyleParse, err)
				}
				values = []interface{}{single}
			}
			out, err := parseExpr(rest[i+1])
			if err != nil {
				return nil, err
			}
			cases = append(cases, matchCase{values: values, output: out})
		}
		if len(rest)%2 == 1 {
			def, err = parseExpr(rest[len(rest)-1])
			if err != nil {
				return nil, err
			}
		}
		return &Expr{Kind: ExprMatch, Input: input, Cases: cases, Default: def}, nil
	case "case":
		rest := arr[1:]
		var clauses []caseClause
		var def *Expr
		var err error
		for i := 0; i+1 < len(rest); i += 2 {
			cond, err := parseFilter(rest[i])
			if err != nil {
				return nil, err
			}
			out, err := parseExpr(rest[i+1])
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, caseClause{condition: cond, output: out})
		}
		if len(rest)%2 == 1 {
			def, err = parseExpr(rest[len(rest)-1])
			if err != nil {
				return nil, err
			}
		}
		return &Expr{Kind: ExprCase, Clauses: clauses, Default: def}, nil
	default:
		var lit interface{}
		json.Unmarshal(raw, &lit)
		return &Expr{Kind: ExprLiteral, Literal: lit}, nil
	}
}
