package expr

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrSyntax is returned by Compile for malformed conditions.
var ErrSyntax = errors.New("condition syntax error")

// BinaryOp compares two operand values.
type BinaryOp func(left, right any) bool

// Option configures Compile.
type Option func(*parser)

// WithOperator registers a word operator such as "has". Built-in operator
// names cannot be replaced.
func WithOperator(name string, fn BinaryOp) Option {
	return func(p *parser) {
		if p.custom == nil {
			p.custom = make(map[string]BinaryOp)
		}
		p.custom[strings.ToLower(name)] = fn
	}
}

// Condition is a compiled condition. It is safe for concurrent use.
type Condition struct {
	src  string
	root node
}

// Compile parses src.
func Compile(src string, opts ...Option) (*Condition, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	for _, opt := range opts {
		opt(p)
	}
	if p.peek().kind == tokEOF {
		return nil, fmt.Errorf("%w: empty condition", ErrSyntax)
	}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("%w: unexpected %s", ErrSyntax, t)
	}
	return &Condition{src: src, root: root}, nil
}

// MustCompile is Compile that panics on error. Use it for conditions
// fixed at build time.
func MustCompile(src string, opts ...Option) *Condition {
	c, err := Compile(src, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// String returns the source text.
func (c *Condition) String() string { return c.src }

// Eval evaluates the condition.
func (c *Condition) Eval(r Resolver) bool {
	if r == nil {
		r = Vars(nil)
	}
	return truthy(c.root.eval(r))
}

type parser struct {
	toks   []token
	pos    int
	custom map[string]BinaryOp
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isWord(words ...string) bool {
	t := p.peek()
	if t.kind != tokIdent && t.kind != tokOp {
		return false
	}
	for _, w := range words {
		if strings.EqualFold(t.text, w) {
			return true
		}
	}
	return false
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isWord("or", "||") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orNode{left, right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isWord("and", "&&") {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = andNode{left, right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.isWord("not", "!") {
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notNode{inner}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	t := p.peek()
	var op BinaryOp
	switch {
	case t.kind == tokOp && compareOps[t.text] != nil:
		op = compareOps[t.text]
	case t.kind == tokIdent && strings.EqualFold(t.text, "contains"):
		op = contains
	case t.kind == tokIdent && strings.EqualFold(t.text, "matches"):
		p.next()
		return p.parseMatches(left)
	case t.kind == tokIdent && p.custom[strings.ToLower(t.text)] != nil:
		op = p.custom[strings.ToLower(t.text)]
	default:
		return left, nil
	}
	p.next()

	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return binaryNode{op: op, left: left, right: right}, nil
}

func (p *parser) parseMatches(left node) (node, error) {
	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	lit, ok := right.(literal)
	if !ok {
		return binaryNode{op: matches, left: left, right: right}, nil
	}
	re, err := regexp.Compile(fmt.Sprint(lit.v))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	return binaryNode{
		op:    func(l, _ any) bool { return re.MatchString(fmt.Sprint(l)) },
		left:  left,
		right: right,
	}, nil
}

func (p *parser) parseOperand() (node, error) {
	t := p.next()
	switch t.kind {
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, fmt.Errorf("%w: expected ) but found %s", ErrSyntax, closing)
		}
		return inner, nil
	case tokString:
		return literal{t.text}, nil
	case tokNumber:
		if i, err := strconv.ParseInt(t.text, 10, 64); err == nil {
			return literal{i}, nil
		}
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad number %s", ErrSyntax, t)
		}
		return literal{f}, nil
	case tokIdent:
		switch strings.ToLower(t.text) {
		case "true":
			return literal{true}, nil
		case "false":
			return literal{false}, nil
		case "null", "nil":
			return literal{nil}, nil
		case "and", "or", "not", "contains", "matches":
			return nil, fmt.Errorf("%w: unexpected keyword %s", ErrSyntax, t)
		}
		return ident(t.text), nil
	default:
		return nil, fmt.Errorf("%w: expected a value but found %s", ErrSyntax, t)
	}
}
