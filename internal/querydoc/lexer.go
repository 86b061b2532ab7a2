package querydoc

import (
	"fmt"
	"strings"
)

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokParam
	tokPunct
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// is reports whether t is the keyword kw, ignoring case.
func (t token) is(kw string) bool {
	return t.kind == tokIdent && strings.EqualFold(t.text, kw)
}

func (t token) punct(p string) bool {
	return t.kind == tokPunct && t.text == p
}

func (t token) String() string {
	if t.kind == tokEOF {
		return "end of input"
	}
	return fmt.Sprintf("%q", t.text)
}

// SyntaxError reports malformed input with the byte offset it was found at.
type SyntaxError struct {
	Input string
	Pos   int
	Msg   string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("querydoc: %s at offset %d in %q", e.Msg, e.Pos, e.Input)
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// tokenize splits input into identifiers, numbers, single-quoted strings
// (with '' as an escaped quote), :params and punctuation. Two-character
// operators (!=, <>, >=, <=, ||) are single tokens.
func tokenize(input string) ([]token, error) {
	var toks []token
	for i := 0; i < len(input); {
		c := input[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c == '\'':
			var sb strings.Builder
			start := i
			i++
			closed := false
			for i < len(input) {
				if input[i] == '\'' {
					if i+1 < len(input) && input[i+1] == '\'' {
						sb.WriteByte('\'')
						i += 2
						continue
					}
					i++
					closed = true
					break
				}
				sb.WriteByte(input[i])
				i++
			}
			if !closed {
				return nil, &SyntaxError{Input: input, Pos: start, Msg: "unterminated string"}
			}
			toks = append(toks, token{kind: tokString, text: sb.String(), pos: start})

		case c == ':':
			start := i
			i++
			for i < len(input) && isIdentPart(input[i]) {
				i++
			}
			if i == start+1 {
				return nil, &SyntaxError{Input: input, Pos: start, Msg: "parameter name expected"}
			}
			toks = append(toks, token{kind: tokParam, text: input[start+1 : i], pos: start})

		case isDigit(c) || (c == '.' && i+1 < len(input) && isDigit(input[i+1])):
			start := i
			for i < len(input) && (isDigit(input[i]) || input[i] == '.') {
				i++
			}
			if i < len(input) && (input[i] == 'e' || input[i] == 'E') {
				i++
				if i < len(input) && (input[i] == '+' || input[i] == '-') {
					i++
				}
				for i < len(input) && isDigit(input[i]) {
					i++
				}
			}
			toks = append(toks, token{kind: tokNumber, text: input[start:i], pos: start})

		case isIdentStart(c):
			start := i
			for i < len(input) && isIdentPart(input[i]) {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: input[start:i], pos: start})

		case c == '"':
			start := i
			end := strings.IndexByte(input[i+1:], '"')
			if end < 0 {
				return nil, &SyntaxError{Input: input, Pos: start, Msg: "unterminated identifier"}
			}
			toks = append(toks, token{kind: tokIdent, text: input[i+1 : i+1+end], pos: start})
			i += end + 2

		default:
			if i+1 < len(input) {
				switch two := input[i : i+2]; two {
				case "!=", "<>", ">=", "<=", "||":
					toks = append(toks, token{kind: tokPunct, text: two, pos: i})
					i += 2
					continue
				}
			}
			if !strings.ContainsRune("()=<>+-*/%,.", rune(c)) {
				return nil, &SyntaxError{Input: input, Pos: i, Msg: fmt.Sprintf("unexpected character %q", c)}
			}
			toks = append(toks, token{kind: tokPunct, text: string(c), pos: i})
			i++
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(input)}), nil
}
