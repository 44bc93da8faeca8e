// Package join implements the join strategies over row sources: cross,
// sort-merge inner and left, correlated cross and outer apply, sequential
// zip with and without padding, and nearest-key matching.
//
// A Node is itself a source.Source, so joins nest. Rows splits the incoming
// descriptor between the two children, fetches the left side, narrows the
// right side with the pushdown analyzer where the strategy allows it,
// combines rows, then applies the residual filter, ordering and row limit.
package join

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/wbrown/janus-rowflow/rowflow"
	"github.com/wbrown/janus-rowflow/rowflow/enumerator"
	"github.com/wbrown/janus-rowflow/rowflow/executor"
	"github.com/wbrown/janus-rowflow/rowflow/query"
	"github.com/wbrown/janus-rowflow/rowflow/source"
)

var (
	// ErrInvalidSpec is returned by New for a join that cannot be built
	ErrInvalidSpec = errors.New("invalid join")

	// ErrNearestUnsupportedKey is returned while enumerating a nearest join
	// whose keys are not all numeric or all times
	ErrNearestUnsupportedKey = errors.New("nearest join requires numeric or time keys")
)

// Kind selects a join strategy
type Kind int

const (
	Inner Kind = iota
	Left
	Cross
	CrossApply
	OuterApply
	Sequential
	LeftSequential
	Nearest
)

var kindNames = []string{"inner", "left", "cross", "cross-apply", "outer-apply", "sequential", "left-sequential", "nearest"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind resolves a strategy name as printed by Kind.String
func ParseKind(name string) (Kind, error) {
	i := slices.Index(kindNames, strings.ToLower(name))
	if i < 0 {
		return 0, fmt.Errorf("%w: unknown kind %q", ErrInvalidSpec, name)
	}
	return Kind(i), nil
}

// outer reports whether unmatched left rows survive paired with an absent
// right side
func (k Kind) outer() bool {
	return k == Left || k == OuterApply || k == LeftSequential || k == Nearest
}

// positional joins pair rows by position, so no filter may reach a child
func (k Kind) positional() bool {
	return k == Sequential || k == LeftSequential
}

// NearestMode is the matching rule of a nearest join
type NearestMode int

const (
	// NearestBackward matches the greatest right key not above the left key
	NearestBackward NearestMode = iota
	// NearestAbsolute matches the right key with the smallest distance;
	// ties go to the lower key
	NearestAbsolute
)

func (m NearestMode) String() string {
	if m == NearestAbsolute {
		return "absolute"
	}
	return "backward"
}

// Spec describes one join
type Spec struct {
	Kind  Kind
	Left  source.Source
	Right source.Source

	// On is the join condition. Inner, Left and Nearest require one; it is
	// optional for apply. Cross and sequential joins reject one: filter
	// their output through the query instead.
	On query.Predicate

	// Factory builds the right side of a correlated apply from each left
	// row. RightAliases then names the aliases its sources produce.
	Factory      func(left *rowflow.Row) source.Source
	RightAliases []string

	Nearest NearestMode

	// Parallelism overrides the context's apply parallelism when positive
	Parallelism int
}

// Node is a built join
type Node struct {
	spec         Spec
	leftAliases  []string
	rightAliases []string
	builder      *rowflow.RowBuilder
}

// New validates a spec and builds the join. Invalid operators and missing
// inputs fail here, before any enumeration.
func New(spec Spec) (*Node, error) {
	if spec.Kind < Inner || spec.Kind > Nearest {
		return nil, fmt.Errorf("%w: unknown kind %d", ErrInvalidSpec, int(spec.Kind))
	}
	if spec.Left == nil {
		return nil, fmt.Errorf("%w: %s join has no left source", ErrInvalidSpec, spec.Kind)
	}

	n := &Node{spec: spec, leftAliases: spec.Left.Aliases(), builder: rowflow.NewRowBuilder()}
	switch {
	case spec.Factory != nil:
		if spec.Kind != CrossApply && spec.Kind != OuterApply {
			return nil, fmt.Errorf("%w: a right-side factory needs an apply join, not %s", ErrInvalidSpec, spec.Kind)
		}
		if len(spec.RightAliases) == 0 {
			return nil, fmt.Errorf("%w: apply factory without right aliases", ErrInvalidSpec)
		}
		n.rightAliases = slices.Clone(spec.RightAliases)
	case spec.Right == nil:
		return nil, fmt.Errorf("%w: %s join has no right source", ErrInvalidSpec, spec.Kind)
	default:
		n.rightAliases = spec.Right.Aliases()
	}
	for _, a := range n.rightAliases {
		if slices.Contains(n.leftAliases, a) {
			return nil, fmt.Errorf("%w: alias %q on both sides", ErrInvalidSpec, a)
		}
	}

	if spec.On != nil {
		if err := validateOperators(spec.On); err != nil {
			return nil, err
		}
	}
	switch spec.Kind {
	case Inner, Left:
		if query.IsTrue(spec.On) {
			return nil, fmt.Errorf("%w: %s join needs a condition", ErrInvalidSpec, spec.Kind)
		}
	case Cross, Sequential, LeftSequential:
		if spec.On != nil && !query.IsTrue(spec.On) {
			return nil, fmt.Errorf("%w: %s join takes no condition, got %s", ErrInvalidSpec, spec.Kind, spec.On)
		}
	case Nearest:
		if _, err := n.nearestKeys(); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// validateOperators rejects comparisons whose operator is not one of
// = != < <= > >=
func validateOperators(p query.Predicate) error {
	switch v := p.(type) {
	case query.Comparison:
		if !v.Op.Valid() {
			return fmt.Errorf("%w: %q in %s", rowflow.ErrInvalidOperator, string(v.Op), v)
		}
	case query.And:
		for _, t := range v.Terms {
			if err := validateOperators(t); err != nil {
				return err
			}
		}
	case query.Or:
		for _, t := range v.Terms {
			if err := validateOperators(t); err != nil {
				return err
			}
		}
	case query.Not:
		return validateOperators(v.Term)
	}
	return nil
}

// Kind returns the join strategy
func (n *Node) Kind() Kind { return n.spec.Kind }

// Aliases are the left aliases followed by the right ones
func (n *Node) Aliases() []string {
	return append(slices.Clone(n.leftAliases), n.rightAliases...)
}

func (n *Node) String() string {
	on := "true"
	if n.spec.On != nil {
		on = n.spec.On.String()
	}
	return fmt.Sprintf("%s join [%s] x [%s] on %s",
		n.spec.Kind, strings.Join(n.leftAliases, ","), strings.Join(n.rightAliases, ","), on)
}

// plan is the split of one descriptor between the children and the node
type plan struct {
	left     query.PushdownQuery
	right    query.PushdownQuery
	residual query.Predicate
	// extra conjuncts of the result filter that may narrow the right side
	correlated query.Predicate
}

func (n *Node) plan(q query.PushdownQuery) plan {
	filter := q.Filter()
	leftOnly, rest := query.Split(filter, n.leftAliases)
	rightOnly, mixed := query.Split(rest, n.rightAliases)

	p := plan{residual: query.True, correlated: query.True}
	var leftFilter, rightFilter query.Predicate = query.True, query.True
	switch {
	case n.spec.Kind.positional():
		p.residual = filter
	case n.spec.Kind.outer():
		leftFilter = leftOnly
		p.residual = query.AndOf(rightOnly, mixed)
	default:
		leftFilter, rightFilter = leftOnly, rightOnly
		p.residual = mixed
		p.correlated = mixed
	}

	needed := slices.Clone(p.residual.Fields())
	if n.spec.On != nil {
		needed = append(needed, n.spec.On.Fields()...)
	}
	for _, o := range q.OrderBy() {
		needed = append(needed, o.Expr.Fields()...)
	}

	p.left = n.child(q, n.leftAliases, leftFilter, needed)
	p.right = n.child(q, n.rightAliases, rightFilter, needed)
	return p
}

// child derives the descriptor sent to one side. Ordering and limits stay
// with the node.
func (n *Node) child(q query.PushdownQuery, aliases []string, filter query.Predicate, needed []string) query.PushdownQuery {
	set := query.AliasSet(aliases)
	var extra []string
	for _, f := range needed {
		if set[query.AliasOf(f)] {
			extra = append(extra, f)
		}
	}
	return q.Restrict(aliases).WithFilter(filter).WithOrder().WithExtraFields(extra...)
}

// Rows implements source.Source
func (n *Node) Rows(ec *executor.Context, q query.PushdownQuery) enumerator.Enumerable[*rowflow.Row] {
	p := n.plan(q)
	return enumerator.Func[*rowflow.Row](func() enumerator.Enumerator[*rowflow.Row] {
		r := newRun(n, ec, p)
		rows := enumerator.Defer(r.build)
		if !query.IsTrue(p.residual) {
			rows = enumerator.Where(rows, p.residual.Match)
		}
		rows = source.Finish(ec, n.builder, rows, q)
		rows = enumerator.OnComplete(rows, r.complete)
		return &runEnum{Enumerator: rows.Enumerate(), run: r}
	})
}
