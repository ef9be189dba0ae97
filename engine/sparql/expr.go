package sparql

import (
	"regexp"
	"strings"
	"time"
)

// Expr is a rendered FILTER expression. The empty Expr means "no constraint".
type Expr string

// Regex matches v against a raw regular expression.
func Regex(v Var, pattern string, caseInsensitive bool) Expr {
	if caseInsensitive {
		return Expr("regex(str(" + ser(v) + "), " + quote(pattern) + `, "i")`)
	}
	return Expr("regex(str(" + ser(v) + "), " + quote(pattern) + ")")
}

// Contains matches v case-insensitively against .*text.*, with text taken
// literally.
func Contains(v Var, text string) Expr {
	if text == "" {
		return ""
	}
	return Regex(v, ".*"+regexp.QuoteMeta(text)+".*", true)
}

// DateRange bounds v to the closed interval [from, to]. A zero bound is open.
func DateRange(v Var, from, to time.Time) Expr {
	var parts []Expr
	if !from.IsZero() {
		parts = append(parts, Expr(ser(v)+" >= "+ser(DateTime(from))))
	}
	if !to.IsZero() {
		parts = append(parts, Expr(ser(v)+" <= "+ser(DateTime(to))))
	}
	return And(parts...)
}

// Equals compares v to a term.
func Equals(v Var, t Term) Expr { return Expr(ser(v) + " = " + ser(t)) }

// In restricts v to the given terms.
func In(v Var, ts ...Term) Expr { return Expr(ser(v) + " IN (" + join(ts) + ")") }

// NotIn excludes the given terms.
func NotIn(v Var, ts ...Term) Expr { return Expr(ser(v) + " NOT IN (" + join(ts) + ")") }

// StrStarts tests the string form of v for a prefix.
func StrStarts(v Var, prefix string) Expr {
	return Expr("STRSTARTS(str(" + ser(v) + "), " + quote(prefix) + ")")
}

// Bound tests whether v has a value.
func Bound(v Var) Expr { return Expr("BOUND(" + ser(v) + ")") }

// Not negates e.
func Not(e Expr) Expr {
	if e == "" {
		return ""
	}
	return "!(" + e + ")"
}

// And conjoins non-empty expressions.
func And(es ...Expr) Expr { return combine(" && ", es) }

// Or disjoins non-empty expressions.
func Or(es ...Expr) Expr { return combine(" || ", es) }

func combine(op string, es []Expr) Expr {
	var kept []string
	for _, e := range es {
		if e != "" {
			kept = append(kept, string(e))
		}
	}
	switch len(kept) {
	case 0:
		return ""
	case 1:
		return Expr(kept[0])
	}
	return Expr("(" + strings.Join(kept, op) + ")")
}

func join(ts []Term) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = ser(t)
	}
	return strings.Join(parts, ", ")
}
