// Command edgeflow-coordinator is a placeholder for the coordinator
// process, an out-of-scope external collaborator: query parsing,
// logical→physical plan translation, operator placement, and the
// REST/RPC control plane all live there, not in this module. This
// binary only documents the boundary the worker runtime consumes —
// Placer and Catalog below — so a real coordinator implementation has a
// concrete Go interface to satisfy; it does not implement placement or
// catalog logic itself.
package main

import "fmt"

// Placement assigns one compiled subplan to one worker location. It is
// keyed the same way a reconfiguration message and a network partition
// are: by (operator_id, subplan_id).
type Placement struct {
	OperatorID   uint64
	SubplanID    uint64
	WorkerLoc    string
	PredecessorN int32 // fan-in count this subplan should Initialize with
}

// Placer is the interface the worker runtime consumes from the
// coordinator's placement strategy.
type Placer interface {
	PlacementsFor(queryID uint64) ([]Placement, error)
}

// CatalogEntry names a schema and physical source/sink configuration
// already resolved by the coordinator's source-type configuration
// loading, down to the option structs pkg/config binds.
type CatalogEntry struct {
	Name       string
	SchemaJSON []byte // opaque to the worker; decoded by the query compiler, not this module
}

// Catalog is the interface the worker runtime consumes from the
// coordinator's persisted catalog.
type Catalog interface {
	Lookup(name string) (CatalogEntry, bool)
}

func main() {
	fmt.Println("edgeflow-coordinator: placement and catalog live outside this module's scope; see Placer/Catalog for the consumed interface")
}
