// Package templates maps operators to per-dialect rendering patterns.
//
// A pattern is text with numbered argument slots:
//
//	{0}     argument 0
//	{1%}    argument 1 with LIKE wildcards escaped and a trailing %
//	{%1}    leading %
//	{%1%}   both
//	{0l}    argument 0 lower-cased
//	{0u}    argument 0 upper-cased
//	{1s}    argument 1 inlined as raw text
//	{*}     every argument, comma separated
//
// A brace not followed by a slot is literal text.
package templates

import (
	"strconv"
	"strings"
)

// Precedence levels. Higher binds tighter. A child operation is wrapped in
// parentheses when its template precedence is lower than its parent's.
const (
	PrecedenceLowest     = 0
	PrecedenceSetOp      = 5
	PrecedenceOr         = 10
	PrecedenceAnd        = 20
	PrecedenceNot        = 30
	PrecedenceComparison = 40
	PrecedenceAddition   = 50
	PrecedenceMultiply   = 60
	PrecedenceUnary      = 70
	// PrecedenceHighest marks self-delimiting patterns such as function
	// calls, whose arguments never need parentheses.
	PrecedenceHighest = 100
)

// Transform modifies how a slot renders its argument.
type Transform uint8

const (
	TransformNone Transform = iota
	TransformLikeSuffix
	TransformLikePrefix
	TransformLikeBoth
	TransformLower
	TransformUpper
	TransformRaw
)

// AllArgs is the slot index of {*}.
const AllArgs = -2

// Element is a parsed piece of a pattern: literal text when Index is -1,
// otherwise an argument slot.
type Element struct {
	Text      string
	Index     int
	Transform Transform
}

// IsText reports whether e is literal text.
func (e Element) IsText() bool { return e.Index == -1 }

// Template is a parsed pattern with a precedence.
type Template struct {
	pattern    string
	elements   []Element
	precedence int
	arity      int
}

// Parse parses pattern. It fails on an unterminated or malformed slot.
func Parse(pattern string, precedence int) (Template, error) {
	t := Template{pattern: pattern, precedence: precedence}
	var text strings.Builder
	flush := func() {
		if text.Len() > 0 {
			t.elements = append(t.elements, Element{Text: text.String(), Index: -1})
			text.Reset()
		}
	}
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c != '{' || !isSlotStart(pattern[i+1:]) {
			text.WriteByte(c)
			continue
		}
		end := strings.IndexByte(pattern[i:], '}')
		if end < 0 {
			return Template{}, &ParseError{Pattern: pattern, Offset: i, Reason: "unterminated slot"}
		}
		el, err := parseSlot(pattern[i+1 : i+end])
		if err != nil {
			return Template{}, &ParseError{Pattern: pattern, Offset: i, Reason: err.Error()}
		}
		flush()
		t.elements = append(t.elements, el)
		if el.Index+1 > t.arity {
			t.arity = el.Index + 1
		}
		i += end
	}
	flush()
	return t, nil
}

// MustParse is Parse that panics on error. It is used for built-in tables.
func MustParse(pattern string, precedence int) Template {
	t, err := Parse(pattern, precedence)
	if err != nil {
		panic(err)
	}
	return t
}

func isSlotStart(rest string) bool {
	if rest == "" {
		return false
	}
	if rest[0] == '*' {
		return true
	}
	if rest[0] == '%' {
		rest = rest[1:]
	}
	return rest != "" && rest[0] >= '0' && rest[0] <= '9'
}

type slotError string

func (e slotError) Error() string { return string(e) }

func parseSlot(body string) (Element, error) {
	if body == "*" {
		return Element{Index: AllArgs}, nil
	}
	prefix := strings.HasPrefix(body, "%")
	body = strings.TrimPrefix(body, "%")
	digits := 0
	for digits < len(body) && body[digits] >= '0' && body[digits] <= '9' {
		digits++
	}
	idx, err := strconv.Atoi(body[:digits])
	if err != nil {
		return Element{}, slotError("invalid slot index")
	}
	el := Element{Index: idx}
	suffix := body[digits:]
	switch {
	case suffix == "" && prefix:
		el.Transform = TransformLikePrefix
	case suffix == "%" && prefix:
		el.Transform = TransformLikeBoth
	case prefix:
		return Element{}, slotError("unexpected suffix " + strconv.Quote(suffix))
	case suffix == "":
	case suffix == "%":
		el.Transform = TransformLikeSuffix
	case suffix == "l":
		el.Transform = TransformLower
	case suffix == "u":
		el.Transform = TransformUpper
	case suffix == "s":
		el.Transform = TransformRaw
	default:
		return Element{}, slotError("unknown slot suffix " + strconv.Quote(suffix))
	}
	return el, nil
}

func (t Template) Pattern() string { return t.pattern }
func (t Template) Precedence() int { return t.precedence }

// Arity is one past the highest slot index.
func (t Template) Arity() int { return t.arity }

// Elements returns the parsed pattern.
func (t Template) Elements() []Element { return t.elements }

// IsZero reports whether t is the zero Template.
func (t Template) IsZero() bool { return t.pattern == "" && t.elements == nil }

// LeadingSlot returns the index of the first slot in pattern order, or -1.
// Associativity treats that argument as the left operand.
func (t Template) LeadingSlot() int {
	for _, e := range t.elements {
		if !e.IsText() {
			return e.Index
		}
	}
	return -1
}

func (t Template) String() string { return t.pattern }
