package expr

import (
	"regexp"
	"strconv"

	"github.com/aidanlsb/moltrack/internal/errs"
)

// Parser parses expressions into an AST.
type Parser struct {
	src   string
	lexer *Lexer
	curr  Token
	peek  Token
}

// ParseExpr parses preprocessed expression text.
func ParseExpr(src string) (Node, error) {
	p := &Parser{src: src, lexer: NewLexer(src)}
	p.advance()
	p.advance()

	if p.curr.Type == TokenEOF {
		return nil, p.errorf(p.curr, "empty expression")
	}
	n, err := p.parseConditional()
	if err != nil {
		return nil, err
	}
	if p.curr.Type != TokenEOF {
		return nil, p.errorf(p.curr, "unexpected %q", p.curr.Value)
	}
	return n, nil
}

func (p *Parser) advance() {
	p.curr = p.peek
	p.peek = p.lexer.NextToken()
}

func (p *Parser) errorf(tok Token, format string, args ...any) error {
	e := errs.New(errs.MalformedExpression, format, args...)
	frag := tok.Value
	if tok.Type == TokenEOF {
		frag = "end of input"
	}
	if tok.Type == TokenError && (tok.Value == "&" || tok.Value == "|") {
		e.Message = "single '" + tok.Value + "' is not an operator, use '" + tok.Value + tok.Value + "'"
	}
	e.Message += " at position " + strconv.Itoa(tok.Pos) + " in " + strconv.Quote(p.src)
	return e.WithFragment(frag)
}

func (p *Parser) expect(t TokenType, what string) error {
	if p.curr.Type != t {
		if p.curr.Type == TokenError {
			return p.errorf(p.curr, "unexpected %q", p.curr.Value)
		}
		return p.errorf(p.curr, "expected %s", what)
	}
	p.advance()
	return nil
}

// parseConditional parses "a ? b : c" (lowest precedence, right-associative).
func (p *Parser) parseConditional() (Node, error) {
	cond, err := p.parseBinary(0)
	if err != nil {
		return nil, err
	}
	if p.curr.Type != TokenQuestion {
		return cond, nil
	}
	p.advance()
	then, err := p.parseConditional()
	if err != nil {
		return nil, err
	}
	if err := p.expect(TokenColon, "':' in conditional"); err != nil {
		return nil, err
	}
	els, err := p.parseConditional()
	if err != nil {
		return nil, err
	}
	return &Conditional{Cond: cond, Then: then, Else: els}, nil
}

// precedence levels for binary operators, lowest first.
var precedence = [][]TokenType{
	{TokenOr},
	{TokenAnd},
	{TokenEqEq, TokenBangEq},
	{TokenLt, TokenLte, TokenGt, TokenGte, TokenIn},
	{TokenPlus, TokenMinus},
	{TokenStar, TokenSlash, TokenPercent},
}

func (p *Parser) parseBinary(level int) (Node, error) {
	if level == len(precedence) {
		return p.parseUnary()
	}
	left, err := p.parseBinary(level + 1)
	if err != nil {
		return nil, err
	}
	for p.atAny(precedence[level]) {
		op := p.curr.Type
		p.advance()
		right, err := p.parseBinary(level + 1)
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) atAny(types []TokenType) bool {
	for _, t := range types {
		if p.curr.Type == t {
			return true
		}
	}
	return false
}

func (p *Parser) parseUnary() (Node, error) {
	if p.curr.Type == TokenBang || p.curr.Type == TokenMinus {
		op := p.curr.Type
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if lit, ok := operand.(*Literal); ok && op == TokenMinus {
			if f, ok := lit.Value.(float64); ok {
				return &Literal{Value: -f}, nil
			}
		}
		return &Unary{Op: op, Operand: operand}, nil
	}
	return p.parsePostfix()
}

// parsePostfix handles receiver-style calls such as name.matches('x').
func (p *Parser) parsePostfix() (Node, error) {
	n, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.curr.Type == TokenDot {
		p.advance()
		if p.curr.Type != TokenIdent {
			return nil, p.errorf(p.curr, "expected method name after '.'")
		}
		nameTok := p.curr
		p.advance()
		if p.curr.Type != TokenLParen {
			return nil, p.errorf(nameTok, "field access %q is not supported", nameTok.Value)
		}
		args, err := p.parseArgs()
		if err != nil {
			return nil, err
		}
		n, err = p.newCall(nameTok, append([]Node{n}, args...))
		if err != nil {
			return nil, err
		}
	}
	return n, nil
}

func (p *Parser) parsePrimary() (Node, error) {
	tok := p.curr
	switch tok.Type {
	case TokenNumber:
		p.advance()
		f, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, p.errorf(tok, "invalid number %q", tok.Value)
		}
		return &Literal{Value: f}, nil
	case TokenString:
		p.advance()
		return &Literal{Value: tok.Value}, nil
	case TokenTrue, TokenFalse:
		p.advance()
		return &Literal{Value: tok.Type == TokenTrue}, nil
	case TokenNull:
		p.advance()
		return &Literal{Value: nil}, nil
	case TokenIdent:
		p.advance()
		if p.curr.Type == TokenLParen {
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			return p.newCall(tok, args)
		}
		return &Ident{Name: tok.Value}, nil
	case TokenLParen:
		p.advance()
		n, err := p.parseConditional()
		if err != nil {
			return nil, err
		}
		if err := p.expect(TokenRParen, "')'"); err != nil {
			return nil, err
		}
		return n, nil
	case TokenLBracket:
		p.advance()
		var items []Node
		for p.curr.Type != TokenRBracket {
			item, err := p.parseConditional()
			if err != nil {
				return nil, err
			}
			items = append(items, item)
			if p.curr.Type != TokenComma {
				break
			}
			p.advance()
		}
		if err := p.expect(TokenRBracket, "']'"); err != nil {
			return nil, err
		}
		return &List{Items: items}, nil
	case TokenEOF:
		return nil, p.errorf(tok, "unexpected end of expression")
	}
	return nil, p.errorf(tok, "unexpected %q", tok.Value)
}

// parseArgs parses a parenthesized argument list; curr is '('.
func (p *Parser) parseArgs() ([]Node, error) {
	p.advance()
	var args []Node
	for p.curr.Type != TokenRParen {
		arg, err := p.parseConditional()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.curr.Type != TokenComma {
			break
		}
		p.advance()
	}
	if err := p.expect(TokenRParen, "')' after arguments"); err != nil {
		return nil, err
	}
	return args, nil
}

// newCall resolves a built-in and checks arity at compile time.
func (p *Parser) newCall(nameTok Token, args []Node) (Node, error) {
	fn, ok := builtins[nameTok.Value]
	if !ok {
		return nil, p.errorf(nameTok, "unknown function %q", nameTok.Value)
	}
	if len(args) != fn.arity {
		return nil, p.errorf(nameTok, "%s() takes %d argument(s), got %d", fn.name, fn.arity, len(args))
	}
	call := &Call{Func: fn, Args: args}
	if fn.name == "matches" {
		if lit, ok := args[1].(*Literal); ok {
			pattern, isString := lit.Value.(string)
			if !isString {
				return nil, p.errorf(nameTok, "matches() pattern must be a string")
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, p.errorf(nameTok, "invalid pattern %q: %v", pattern, err)
			}
			call.Pattern = re
		}
	}
	return call, nil
}
