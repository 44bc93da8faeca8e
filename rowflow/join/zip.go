package join

import (
	"github.com/wbrown/janus-rowflow/rowflow"
	"github.com/wbrown/janus-rowflow/rowflow/enumerator"
)

// zip pairs the i-th left row with the i-th right row. Sequential stops at
// the shorter side; LeftSequential pads the shorter side with absent rows.
// Neither side is materialized.
func (r *run) zip() enumerator.Enumerable[*rowflow.Row] {
	r.leftRows, r.rightRows = 0, 0
	left := counted(r.node.spec.Left.Rows(r.ec, r.plan.left), &r.leftRows)
	right := counted(r.node.spec.Right.Rows(r.ec, r.plan.right), &r.rightRows)
	if r.kind() == LeftSequential {
		return enumerator.ZipLongest(left, right, r.combine)
	}
	return enumerator.Zip(left, right, r.combine)
}

func counted(rows enumerator.Enumerable[*rowflow.Row], n *int) enumerator.Enumerable[*rowflow.Row] {
	return enumerator.Select(rows, func(row *rowflow.Row) *rowflow.Row {
		*n++
		return row
	})
}
