package criteria

import (
	"regexp"
	"strings"
)

// Parse turns criteria text into a type-checked AST.
func Parse(text string) (Node, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errorf(0, "criteria is empty")
	}

	tokens, err := lex(text)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	if tok := p.peek(); tok.kind != tokEOF {
		return nil, errorf(tok.pos, "unexpected %s %q", tok.kind, tok.text)
	}
	return node, nil
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &And{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Node, error) {
	if p.peek().kind == tokNot {
		p.next()
		expr, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Not{Expr: expr}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	tok := p.next()

	switch tok.kind {
	case tokLParen:
		node, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, errorf(closing.pos, "expected ')' but found %s", closing.kind)
		}
		return node, nil

	case tokIdent:
		attr, ok := lookupAttribute(tok.text)
		if !ok {
			if hint := suggest(strings.ToLower(tok.text)); hint != "" {
				return nil, errorf(tok.pos, "unknown attribute %q (did you mean %q?)", tok.text, hint)
			}
			return nil, errorf(tok.pos, "unknown attribute %q", tok.text)
		}

		if p.peek().kind != tokOp {
			if attr.Kind != KindBool {
				return nil, errorf(tok.pos, "%s attribute %q needs a comparison", attr.Kind, attr.Name)
			}
			return &Attr{Attr: attr}, nil
		}
		return p.parseComparison(attr)

	case tokEOF:
		return nil, errorf(tok.pos, "unexpected end of criteria")

	default:
		return nil, errorf(tok.pos, "expected attribute or '(' but found %s %q", tok.kind, tok.text)
	}
}

func (p *parser) parseComparison(attr *Attribute) (Node, error) {
	opTok := p.next()
	op := Op(opTok.text)
	if op == "==" {
		op = OpEq
	}

	if !opAllowed(attr.Kind, op) {
		return nil, errorf(opTok.pos, "operator %q is not allowed for %s attribute %q", opTok.text, attr.Kind, attr.Name)
	}

	litTok := p.next()
	value, err := literal(attr, litTok)
	if err != nil {
		return nil, err
	}
	return &Comparison{Attr: attr, Op: op, Value: value}, nil
}

var datePattern = regexp.MustCompile(`^\d{4}(-(0[1-9]|1[0-2])(-(0[1-9]|[12]\d|3[01]))?)?$`)

// literal converts a literal token into a value of the attribute's kind.
func literal(attr *Attribute, tok token) (Value, error) {
	switch attr.Kind {
	case KindString:
		if tok.kind != tokString {
			return Value{}, errorf(tok.pos, "%q expects a quoted string, found %s", attr.Name, tok.kind)
		}
		return Value{Kind: KindString, Text: tok.text}, nil

	case KindBool:
		if tok.kind != tokTrue && tok.kind != tokFalse {
			return Value{}, errorf(tok.pos, "%q expects true or false, found %s", attr.Name, tok.kind)
		}
		return Value{Kind: KindBool, Text: strings.ToLower(tok.text)}, nil

	case KindDate:
		if tok.kind != tokString && tok.kind != tokNumber {
			return Value{}, errorf(tok.pos, "%q expects a date (YYYY, YYYY-MM or YYYY-MM-DD), found %s", attr.Name, tok.kind)
		}
		if !datePattern.MatchString(tok.text) {
			return Value{}, errorf(tok.pos, "malformed date %q (want YYYY, YYYY-MM or YYYY-MM-DD)", tok.text)
		}
		return Value{Kind: KindDate, Text: tok.text}, nil
	}
	return Value{}, errorf(tok.pos, "unsupported attribute kind %s", attr.Kind)
}
