package traceql

import (
	"errors"
	"fmt"
)

// ErrSyntax is wrapped by every parse error.
var ErrSyntax = errors.New("traceql: syntax error")

// Parser is a recursive-descent parser. Precedence from low to high:
// OR, AND, NOT, primary.
type Parser struct {
	lexer   *Lexer
	current Token
}

// Parse parses input. An empty or blank input yields a nil Node, which
// matches every record.
func Parse(input string) (Node, error) {
	p := &Parser{lexer: NewLexer(input)}
	p.advance()
	if p.current.Type == TokenEOF {
		return nil, nil
	}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.current.Type != TokenEOF {
		return nil, p.errorf("unexpected %q", p.current.Value)
	}
	return n, nil
}

func (p *Parser) advance() {
	p.current = p.lexer.NextToken()
}

func (p *Parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w at %d: %s", ErrSyntax, p.current.Pos, fmt.Sprintf(format, args...))
}

func (p *Parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.current.Type == TokenOr {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = BinaryExpr{Op: "OR", Left: left, Right: right}
	}
	return left, nil
}

// parseAnd also accepts juxtaposition: "a b" means "a AND b".
func (p *Parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for {
		switch p.current.Type {
		case TokenAnd:
			p.advance()
		case TokenIdent, TokenString, TokenLParen, TokenNot:
		default:
			return left, nil
		}
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = BinaryExpr{Op: "AND", Left: left, Right: right}
	}
}

func (p *Parser) parseNot() (Node, error) {
	if p.current.Type == TokenNot {
		p.advance()
		expr, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return NotExpr{Expr: expr}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Node, error) {
	switch p.current.Type {
	case TokenLParen:
		p.advance()
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.current.Type != TokenRParen {
			return nil, p.errorf("expected ')'")
		}
		p.advance()
		return expr, nil

	case TokenString:
		value := p.current.Value
		p.advance()
		return CompareExpr{Op: OpContains, Value: value}, nil

	case TokenIdent:
		key := p.current.Value
		p.advance()
		switch p.current.Type {
		case TokenColon:
			p.advance()
			return p.parseValue(key, OpEq)
		case TokenCompare:
			op := Op(p.current.Value)
			p.advance()
			return p.parseValue(key, op)
		}
		return CompareExpr{Op: OpContains, Value: key}, nil

	case TokenEOF:
		return nil, p.errorf("unexpected end of expression")
	}
	return nil, p.errorf("unexpected %q", p.current.Value)
}

func (p *Parser) parseValue(key string, op Op) (Node, error) {
	switch p.current.Type {
	case TokenString, TokenIdent:
		value := p.current.Value
		p.advance()
		return CompareExpr{Key: key, Op: op, Value: value}, nil
	}
	return nil, p.errorf("expected value after %s%s", key, op)
}
