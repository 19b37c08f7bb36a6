package expr

import (
	"strconv"
	"unicode"
	"unicode/utf8"
)

// tokenKind identifies a lexical token.
type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokLParen
	tokRParen
	tokComma
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokPercent
	tokCaret
)

var tokenNames = map[tokenKind]string{
	tokEOF:     "end of expression",
	tokNumber:  "number",
	tokIdent:   "identifier",
	tokLParen:  "'('",
	tokRParen:  "')'",
	tokComma:   "','",
	tokPlus:    "'+'",
	tokMinus:   "'-'",
	tokStar:    "'*'",
	tokSlash:   "'/'",
	tokPercent: "'%'",
	tokCaret:   "'^'",
}

func (k tokenKind) String() string {
	if name, ok := tokenNames[k]; ok {
		return name
	}
	return "unknown token"
}

// token is one lexeme with its byte offset in the source.
type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

// lex splits src into tokens, ending with a tokEOF.
func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		r, size := utf8.DecodeRuneInString(src[i:])
		switch {
		case unicode.IsSpace(r):
			i += size

		case isDigit(r) || (r == '.' && i+1 < len(src) && isDigit(rune(src[i+1]))):
			start := i
			i = scanNumber(src, i)
			text := src[start:i]
			f, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, malformed(src, start, "invalid number %q", text)
			}
			toks = append(toks, token{kind: tokNumber, text: text, num: f, pos: start})

		case isIdentStart(r):
			start := i
			for i < len(src) {
				r, size := utf8.DecodeRuneInString(src[i:])
				if !isIdentPart(r) {
					break
				}
				i += size
			}
			toks = append(toks, token{kind: tokIdent, text: src[start:i], pos: start})

		default:
			kind, width := punct(src, i)
			if kind == tokEOF {
				return nil, malformed(src, i, "unexpected character %q", r)
			}
			toks = append(toks, token{kind: kind, text: src[i : i+width], pos: i})
			i += width
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(src)})
	return toks, nil
}

// scanNumber returns the end offset of the numeric literal starting at i.
// Accepts digits, an optional fraction, and an optional signed exponent.
func scanNumber(src string, i int) int {
	for i < len(src) && isDigit(rune(src[i])) {
		i++
	}
	if i < len(src) && src[i] == '.' {
		i++
		for i < len(src) && isDigit(rune(src[i])) {
			i++
		}
	}
	if i < len(src) && (src[i] == 'e' || src[i] == 'E') {
		j := i + 1
		if j < len(src) && (src[j] == '+' || src[j] == '-') {
			j++
		}
		if j < len(src) && isDigit(rune(src[j])) {
			for j < len(src) && isDigit(rune(src[j])) {
				j++
			}
			i = j
		}
	}
	return i
}

// punct recognizes operator and delimiter tokens at offset i.
// Returns tokEOF when src[i] is not a known punctuation character.
func punct(src string, i int) (tokenKind, int) {
	switch src[i] {
	case '(':
		return tokLParen, 1
	case ')':
		return tokRParen, 1
	case ',':
		return tokComma, 1
	case '+':
		return tokPlus, 1
	case '-':
		return tokMinus, 1
	case '*':
		if i+1 < len(src) && src[i+1] == '*' {
			return tokCaret, 2
		}
		return tokStar, 1
	case '/':
		return tokSlash, 1
	case '%':
		return tokPercent, 1
	case '^':
		return tokCaret, 1
	}
	return tokEOF, 0
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// IsIdentifier reports whether s is a valid attribute name in an expression.
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 && !isIdentStart(r) {
			return false
		}
		if !isIdentPart(r) {
			return false
		}
	}
	return true
}
