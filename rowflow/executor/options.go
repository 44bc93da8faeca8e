package executor

import (
	"github.com/wbrown/janus-rowflow/rowflow/annotations"
	"github.com/wbrown/janus-rowflow/rowflow/logging"
	"github.com/wbrown/janus-rowflow/rowflow/materialize"
)

// DefaultBatchSize is used when neither options nor settings set one
const DefaultBatchSize = 256

// Options configures a Context. Zero values defer to Settings.
type Options struct {
	Logger   *logging.Logger
	Settings Settings
	Policy   materialize.Policy

	// Annotation events go to Handler; CollectEvents keeps them in the
	// collector even without a handler
	Handler       annotations.Handler
	CollectEvents bool

	BatchSize        int
	MaxScannedRows   int64
	DisablePushdown  bool
	ApplyParallelism int
}
