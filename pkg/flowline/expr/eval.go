package expr

import (
	"fmt"
	"regexp"
	"strings"
)

// Resolver looks up an identifier's value.
type Resolver func(name string) (any, bool)

// Vars resolves identifiers from vars. Dotted names descend into nested
// map[string]any values.
func Vars(vars map[string]any) Resolver {
	return func(name string) (any, bool) {
		if v, ok := vars[name]; ok {
			return v, true
		}
		return Lookup(vars, name)
	}
}

// Lookup follows a dotted path through nested maps.
func Lookup(root map[string]any, path string) (any, bool) {
	var cur any = root
	for part := range strings.SplitSeq(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

type node interface {
	eval(r Resolver) any
}

type literal struct{ v any }

func (l literal) eval(Resolver) any { return l.v }

type ident string

func (i ident) eval(r Resolver) any {
	v, _ := r(string(i))
	return v
}

type notNode struct{ inner node }

func (n notNode) eval(r Resolver) any { return !truthy(n.inner.eval(r)) }

type andNode struct{ left, right node }

func (n andNode) eval(r Resolver) any { return truthy(n.left.eval(r)) && truthy(n.right.eval(r)) }

type orNode struct{ left, right node }

func (n orNode) eval(r Resolver) any { return truthy(n.left.eval(r)) || truthy(n.right.eval(r)) }

type binaryNode struct {
	op          BinaryOp
	left, right node
}

func (n binaryNode) eval(r Resolver) any { return n.op(n.left.eval(r), n.right.eval(r)) }

var compareOps = map[string]BinaryOp{
	"==": equal,
	"!=": func(l, r any) bool { return !equal(l, r) },
	"<":  func(l, r any) bool { c, ok := order(l, r); return ok && c < 0 },
	">":  func(l, r any) bool { c, ok := order(l, r); return ok && c > 0 },
	"<=": func(l, r any) bool { c, ok := order(l, r); return ok && c <= 0 },
	">=": func(l, r any) bool { c, ok := order(l, r); return ok && c >= 0 },
}

func equal(l, r any) bool {
	if lf, ok := number(l); ok {
		if rf, ok := number(r); ok {
			return lf == rf
		}
	}
	if l == nil || r == nil {
		return l == nil && r == nil
	}
	return fmt.Sprint(l) == fmt.Sprint(r)
}

func order(l, r any) (int, bool) {
	if lf, ok := number(l); ok {
		if rf, ok := number(r); ok {
			switch {
			case lf < rf:
				return -1, true
			case lf > rf:
				return 1, true
			}
			return 0, true
		}
	}
	ls, lok := l.(string)
	rs, rok := r.(string)
	if lok && rok {
		return strings.Compare(ls, rs), true
	}
	return 0, false
}

func contains(l, r any) bool {
	if l == nil {
		return false
	}
	switch coll := l.(type) {
	case []any:
		for _, item := range coll {
			if equal(item, r) {
				return true
			}
		}
		return false
	case []string:
		for _, item := range coll {
			if equal(item, r) {
				return true
			}
		}
		return false
	case map[string]any:
		_, ok := coll[fmt.Sprint(r)]
		return ok
	}
	return strings.Contains(fmt.Sprint(l), fmt.Sprint(r))
}

func matches(l, r any) bool {
	re, err := regexp.Compile(fmt.Sprint(r))
	if err != nil {
		return false
	}
	return re.MatchString(fmt.Sprint(l))
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func truthy(v any) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	if s, ok := v.(string); ok {
		return s != ""
	}
	if f, ok := number(v); ok {
		return f != 0
	}
	return true
}
