// Package model holds the small value types shared across the engine
// façade, the wire parsers, and the query pipeline. None of these types
// carry behavior beyond simple accessors; they exist so the layers in
// SPEC_FULL.md §2 can pass data between each other without importing one
// another directly.
package model

// PayloadKind tags the shape of a Sample's payload.
type PayloadKind uint8

const (
	// PayloadScalar is a single double-precision value.
	PayloadScalar PayloadKind = iota
	// PayloadTuple is a variable-length tuple of doubles.
	PayloadTuple
	// PayloadBlob is an opaque byte payload.
	PayloadBlob
)

// Sample is the atomic unit crossing every boundary: ingestion, storage,
// and query. Samples are value types and are copied freely.
type Sample struct {
	ParamID   uint64
	Timestamp int64
	Kind      PayloadKind
	Value     float64
	Tuple     []float64
	Blob      []byte

	// Series carries the human-readable series name. The wire parsers set
	// it on the ingestion path, where the engine resolves it to a ParamID
	// (ParamID is used as given only when Series is empty), and the engine
	// fills it in on every sample a query cursor returns.
	Series string
}

// ApiEndpoint selects the textual representation a QueryResultsPooler's
// formatter emits.
type ApiEndpoint int

const (
	EndpointQuery ApiEndpoint = iota
	EndpointSuggest
	EndpointSearch
)

func (e ApiEndpoint) String() string {
	switch e {
	case EndpointSuggest:
		return "suggest"
	case EndpointSearch:
		return "search"
	default:
		return "query"
	}
}

// ProtocolEndpoint is one (protocol-name, address) pair inside a
// ServerSettings.
type ProtocolEndpoint struct {
	Protocol string
	Addr     string
}

// ServerSettings bundles the configuration the registry needs to
// instantiate one server: a human name, its endpoints, and a worker-pool
// size where -1 means "auto-detect from hardware concurrency".
type ServerSettings struct {
	Name      string
	Endpoints []ProtocolEndpoint
	PoolSize  int
}

// WALSettings describes the engine's write-ahead log. Zero/empty values
// mean WAL disabled.
type WALSettings struct {
	Path       string
	NVolumes   int
	VolumeSize int64
}

// Enabled reports whether the WAL settings describe an active WAL.
func (w WALSettings) Enabled() bool {
	return w.Path != "" && w.NVolumes > 0 && w.VolumeSize > 0
}
