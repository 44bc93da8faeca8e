package rowflow

import (
	"github.com/google/uuid"
)

// RowID is the unique identity of a row. Combined rows derive their id
// from both inputs so that the same pair always yields the same id.
type RowID = uuid.UUID

// rowNamespace seeds name-based ids for rows whose readers supply their own keys
var rowNamespace = uuid.MustParse("6f1c2a4e-7d2b-4f3a-9c55-0e8a4b7d1f20")

// NewRowID returns a random row id
func NewRowID() RowID {
	return uuid.New()
}

// RowIDFromKey derives a stable id from a reader-supplied key such as a
// primary key or a file offset
func RowIDFromKey(key string) RowID {
	return uuid.NewSHA1(rowNamespace, []byte(key))
}

// CombineIDs derives the id of a joined row from its two sides
func CombineIDs(left, right RowID) RowID {
	return uuid.NewSHA1(left, right[:])
}
