package expr

import (
	"math"
	"sort"
)

// node is an expression tree node. Evaluation is pure: it reads from env and
// returns a float64.
type node interface {
	eval(env *env) (float64, error)
}

type numberNode struct {
	val float64
}

type identNode struct {
	name string
	pos  int
}

type negNode struct {
	x node
}

type binaryNode struct {
	op   tokenKind
	x, y node
	pos  int
}

type callNode struct {
	name string
	fn   function
	args []node
}

func (n *numberNode) eval(*env) (float64, error) {
	return n.val, nil
}

func (n *identNode) eval(e *env) (float64, error) {
	return e.lookup(n.name, n.pos)
}

func (n *negNode) eval(e *env) (float64, error) {
	x, err := n.x.eval(e)
	if err != nil {
		return 0, err
	}
	return -x, nil
}

func (n *binaryNode) eval(e *env) (float64, error) {
	x, err := n.x.eval(e)
	if err != nil {
		return 0, err
	}
	y, err := n.y.eval(e)
	if err != nil {
		return 0, err
	}

	switch n.op {
	case tokPlus:
		return x + y, nil
	case tokMinus:
		return x - y, nil
	case tokStar:
		return x * y, nil
	case tokSlash:
		return x / y, nil
	case tokPercent:
		return math.Mod(x, y), nil
	case tokCaret:
		return math.Pow(x, y), nil
	}
	return 0, malformed(e.src, n.pos, "unsupported operator %s", n.op)
}

func (n *callNode) eval(e *env) (float64, error) {
	args := make([]float64, len(n.args))
	for i, arg := range n.args {
		v, err := arg.eval(e)
		if err != nil {
			return 0, err
		}
		args[i] = v
	}
	return n.fn.call(args), nil
}

// identifiers collects the binding names referenced by the tree, excluding
// builtin constants, sorted and deduplicated.
func identifiers(root node) []string {
	seen := make(map[string]bool)
	var walk func(node)
	walk = func(n node) {
		switch n := n.(type) {
		case *identNode:
			if _, isConst := constants[n.name]; !isConst {
				seen[n.name] = true
			}
		case *negNode:
			walk(n.x)
		case *binaryNode:
			walk(n.x)
			walk(n.y)
		case *callNode:
			for _, arg := range n.args {
				walk(arg)
			}
		}
	}
	walk(root)

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
