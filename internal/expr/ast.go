package expr

import (
	"regexp"
	"strconv"
	"strings"
)

// Node is an expression AST node.
type Node interface {
	exprNode()
	String() string
}

// Literal is a constant: float64, string, bool or nil.
type Literal struct {
	Value interface{}
}

// Ident references a record field.
type Ident struct {
	Name string
}

// Unary is "!x" or "-x".
type Unary struct {
	Op      TokenType
	Operand Node
}

// Binary is any infix operator, including && and ||.
type Binary struct {
	Op    TokenType
	Left  Node
	Right Node
}

// Conditional is "cond ? then : else".
type Conditional struct {
	Cond Node
	Then Node
	Else Node
}

// List is a bracketed literal list.
type List struct {
	Items []Node
}

// Call invokes a built-in function.
type Call struct {
	Func *builtin
	Args []Node
	// Pattern is precompiled when the matches() pattern is a literal.
	Pattern *regexp.Regexp
}

func (*Literal) exprNode()     {}
func (*Ident) exprNode()       {}
func (*Unary) exprNode()       {}
func (*Binary) exprNode()      {}
func (*Conditional) exprNode() {}
func (*List) exprNode()        {}
func (*Call) exprNode()        {}

func (n *Literal) String() string {
	switch v := n.Value.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return "?"
}

func (n *Ident) String() string { return n.Name }

func (n *Unary) String() string {
	return opSymbol[n.Op] + n.Operand.String()
}

func (n *Binary) String() string {
	return "(" + n.Left.String() + " " + opSymbol[n.Op] + " " + n.Right.String() + ")"
}

func (n *Conditional) String() string {
	return "(" + n.Cond.String() + " ? " + n.Then.String() + " : " + n.Else.String() + ")"
}

func (n *List) String() string {
	parts := make([]string, len(n.Items))
	for i, item := range n.Items {
		parts[i] = item.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (n *Call) String() string {
	parts := make([]string, len(n.Args))
	for i, arg := range n.Args {
		parts[i] = arg.String()
	}
	return n.Func.name + "(" + strings.Join(parts, ", ") + ")"
}

var opSymbol = map[TokenType]string{
	TokenAnd:     "&&",
	TokenOr:      "||",
	TokenBang:    "!",
	TokenEqEq:    "==",
	TokenBangEq:  "!=",
	TokenLt:      "<",
	TokenLte:     "<=",
	TokenGt:      ">",
	TokenGte:     ">=",
	TokenIn:      "in",
	TokenPlus:    "+",
	TokenMinus:   "-",
	TokenStar:    "*",
	TokenSlash:   "/",
	TokenPercent: "%",
}

// walk visits n and its descendants depth-first.
func walk(n Node, fn func(Node)) {
	fn(n)
	switch x := n.(type) {
	case *Unary:
		walk(x.Operand, fn)
	case *Binary:
		walk(x.Left, fn)
		walk(x.Right, fn)
	case *Conditional:
		walk(x.Cond, fn)
		walk(x.Then, fn)
		walk(x.Else, fn)
	case *List:
		for _, item := range x.Items {
			walk(item, fn)
		}
	case *Call:
		for _, arg := range x.Args {
			walk(arg, fn)
		}
	}
}
