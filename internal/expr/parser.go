package expr

import "fmt"

// Limits on accepted input. Expressions are administrator-entered text, so
// both bound the work a single evaluation can do.
const (
	MaxExpressionLength = 4096
	MaxDepth            = 128
)

// parser is a recursive-descent parser over the token stream.
//
// Grammar, lowest precedence first:
//
//	expr    = term { ("+" | "-") term }
//	term    = unary { ("*" | "/" | "%") unary }
//	unary   = ("-" | "+") unary | power
//	power   = primary [ "^" unary ]
//	primary = number | ident | ident "(" [ expr { "," expr } ] ")" | "(" expr ")"
//
// "^" is right-associative and binds tighter than unary minus on its left:
// -2^2 is -(2^2) and 2^-1 is 2^(-1).
type parser struct {
	src   string
	toks  []token
	pos   int
	depth int
}

// parse builds the AST for src.
func parse(src string) (node, error) {
	if len(src) > MaxExpressionLength {
		return nil, malformed(src, -1, "expression exceeds %d bytes", MaxExpressionLength)
	}

	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	if toks[0].kind == tokEOF {
		return nil, malformed(src, 0, "empty expression")
	}

	p := &parser{src: src, toks: toks}
	n, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, p.unexpected(tok)
	}
	return n, nil
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) expect(kind tokenKind) (token, error) {
	tok := p.next()
	if tok.kind != kind {
		return tok, malformed(p.src, tok.pos, "expected %s, found %s", kind, describe(tok))
	}
	return tok, nil
}

func (p *parser) unexpected(tok token) error {
	return malformed(p.src, tok.pos, "unexpected %s", describe(tok))
}

func describe(tok token) string {
	switch tok.kind {
	case tokNumber, tokIdent:
		return fmt.Sprintf("%s %q", tok.kind, tok.text)
	default:
		return tok.kind.String()
	}
}

// enter guards recursion depth for nested parentheses, unary chains, and calls.
func (p *parser) enter(pos int) error {
	p.depth++
	if p.depth > MaxDepth {
		return malformed(p.src, pos, "expression nested deeper than %d levels", MaxDepth)
	}
	return nil
}

func (p *parser) leave() {
	p.depth--
}

func (p *parser) parseExpr() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.kind != tokPlus && tok.kind != tokMinus {
			return left, nil
		}
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: tok.kind, x: left, y: right, pos: tok.pos}
	}
}

func (p *parser) parseTerm() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.kind != tokStar && tok.kind != tokSlash && tok.kind != tokPercent {
			return left, nil
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: tok.kind, x: left, y: right, pos: tok.pos}
	}
}

func (p *parser) parseUnary() (node, error) {
	tok := p.peek()
	if tok.kind != tokMinus && tok.kind != tokPlus {
		return p.parsePower()
	}

	if err := p.enter(tok.pos); err != nil {
		return nil, err
	}
	defer p.leave()

	p.next()
	x, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if tok.kind == tokPlus {
		return x, nil
	}
	return &negNode{x: x}, nil
}

func (p *parser) parsePower() (node, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	tok := p.peek()
	if tok.kind != tokCaret {
		return base, nil
	}

	if err := p.enter(tok.pos); err != nil {
		return nil, err
	}
	defer p.leave()

	p.next()
	exp, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return &binaryNode{op: tokCaret, x: base, y: exp, pos: tok.pos}, nil
}

func (p *parser) parsePrimary() (node, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		return &numberNode{val: tok.num}, nil

	case tokIdent:
		if p.peek().kind == tokLParen {
			return p.parseCall(tok)
		}
		if _, isFunc := functions[tok.text]; isFunc {
			return nil, malformed(p.src, tok.pos, "function %q must be called with parentheses", tok.text)
		}
		return &identNode{name: tok.text, pos: tok.pos}, nil

	case tokLParen:
		if err := p.enter(tok.pos); err != nil {
			return nil, err
		}
		defer p.leave()

		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return inner, nil

	default:
		return nil, p.unexpected(tok)
	}
}

// parseCall parses "name(args...)" after the name has been consumed.
// Unknown names and arity mismatches are reported here, at compile time.
func (p *parser) parseCall(name token) (node, error) {
	if err := p.enter(name.pos); err != nil {
		return nil, err
	}
	defer p.leave()

	p.next() // "("

	var args []node
	if p.peek().kind != tokRParen {
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
	}
	if _, err := p.expect(tokRParen); err != nil {
		return nil, err
	}

	fn, ok := functions[name.text]
	if !ok {
		return nil, &EvalError{
			Kind:       UnknownIdentifier,
			Expression: p.src,
			Name:       name.text,
			Pos:        name.pos,
			Message:    fmt.Sprintf("unknown function %q", name.text),
		}
	}
	if len(args) < fn.minArgs || (fn.maxArgs >= 0 && len(args) > fn.maxArgs) {
		return nil, malformed(p.src, name.pos, "%s() takes %s, got %d", name.text, fn.arity(), len(args))
	}
	return &callNode{name: name.text, fn: fn, args: args}, nil
}
