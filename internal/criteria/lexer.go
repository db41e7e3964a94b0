package criteria

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokOp
	tokLParen
	tokRParen
	tokAnd
	tokOr
	tokNot
	tokTrue
	tokFalse
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of input"
	case tokIdent:
		return "identifier"
	case tokString:
		return "string"
	case tokNumber:
		return "number"
	case tokOp:
		return "operator"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokAnd:
		return "'and'"
	case tokOr:
		return "'or'"
	case tokNot:
		return "'not'"
	case tokTrue, tokFalse:
		return "boolean"
	}
	return "token"
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

var keywords = map[string]tokenKind{
	"and":   tokAnd,
	"or":    tokOr,
	"not":   tokNot,
	"true":  tokTrue,
	"false": tokFalse,
}

// lex splits input into tokens. pos is the byte offset of each token.
func lex(input string) ([]token, error) {
	var tokens []token
	i := 0

	for i < len(input) {
		r, width := utf8.DecodeRuneInString(input[i:])
		switch {
		case unicode.IsSpace(r):
			i += width

		case r == '(':
			tokens = append(tokens, token{tokLParen, "(", i})
			i++

		case r == ')':
			tokens = append(tokens, token{tokRParen, ")", i})
			i++

		case r == '"' || r == '\'':
			text, next, err := lexString(input, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{tokString, text, i})
			i = next

		case r == '&' || r == '|':
			if i+1 >= len(input) || rune(input[i+1]) != r {
				return nil, errorf(i, "unexpected %q (did you mean %q?)", r, string([]rune{r, r}))
			}
			kind := tokAnd
			if r == '|' {
				kind = tokOr
			}
			tokens = append(tokens, token{kind, input[i : i+2], i})
			i += 2

		case strings.ContainsRune("=!<>~", r):
			op := input[i : i+1]
			if i+1 < len(input) && input[i+1] == '=' && r != '~' {
				op = input[i : i+2]
			}
			if op == "!" {
				tokens = append(tokens, token{tokNot, op, i})
			} else {
				tokens = append(tokens, token{tokOp, op, i})
			}
			i += len(op)

		case isDigit(input[i]):
			start := i
			for i < len(input) && (isDigit(input[i]) || input[i] == '-') {
				i++
			}
			tokens = append(tokens, token{tokNumber, input[start:i], start})

		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(input) {
				r, width := utf8.DecodeRuneInString(input[i:])
				if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
					break
				}
				i += width
			}
			word := input[start:i]
			if kind, ok := keywords[strings.ToLower(word)]; ok {
				tokens = append(tokens, token{kind, word, start})
			} else {
				tokens = append(tokens, token{tokIdent, word, start})
			}

		default:
			return nil, errorf(i, "unexpected character %q", r)
		}
	}

	return append(tokens, token{tokEOF, "", len(input)}), nil
}

// lexString reads a quoted string starting at input[start], handling backslash escapes.
func lexString(input string, start int) (string, int, error) {
	quote := input[start]
	var b strings.Builder

	for i := start + 1; i < len(input); i++ {
		c := input[i]
		switch {
		case c == '\\':
			if i+1 >= len(input) {
				return "", 0, errorf(start, "unterminated string")
			}
			i++
			switch input[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(input[i])
			}
		case c == quote:
			return b.String(), i + 1, nil
		default:
			b.WriteByte(c)
		}
	}
	return "", 0, errorf(start, "unterminated string")
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
