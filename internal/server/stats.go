package server

import (
	"fmt"
	"sync/atomic"
)

// Stats accumulates per-ingestor counters, mirroring the Statistics struct
// pattern shared by the teacher's internal/database health counters and
// the influxdb UDP service's Statistics type: a plain struct of
// atomically-updated int64 fields, read with atomic.LoadInt64 for
// reporting and never reset between reads.
type Stats struct {
	PacketsReceived    int64
	BytesReceived      int64
	SamplesWritten     int64
	ParseErrors        int64
	DatabaseErrors     int64
	BatchesDropped     int64
	ConnectionsAccepted int64
}

func (s *Stats) addPacket(n int) {
	atomic.AddInt64(&s.PacketsReceived, 1)
	atomic.AddInt64(&s.BytesReceived, int64(n))
}

func (s *Stats) addSamples(n int64) {
	atomic.AddInt64(&s.SamplesWritten, n)
}

func (s *Stats) addParseError() {
	atomic.AddInt64(&s.ParseErrors, 1)
}

func (s *Stats) addDatabaseError() {
	atomic.AddInt64(&s.DatabaseErrors, 1)
}

func (s *Stats) addBatchDropped() {
	atomic.AddInt64(&s.BatchesDropped, 1)
}

func (s *Stats) addConnection() {
	atomic.AddInt64(&s.ConnectionsAccepted, 1)
}

// Snapshot is a point-in-time copy of Stats safe to read without racing
// concurrent updates.
type Snapshot struct {
	PacketsReceived     int64
	BytesReceived       int64
	SamplesWritten      int64
	ParseErrors         int64
	DatabaseErrors      int64
	BatchesDropped      int64
	ConnectionsAccepted int64
}

// Snapshot reads every counter with atomic.LoadInt64.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		PacketsReceived:     atomic.LoadInt64(&s.PacketsReceived),
		BytesReceived:       atomic.LoadInt64(&s.BytesReceived),
		SamplesWritten:      atomic.LoadInt64(&s.SamplesWritten),
		ParseErrors:         atomic.LoadInt64(&s.ParseErrors),
		DatabaseErrors:      atomic.LoadInt64(&s.DatabaseErrors),
		BatchesDropped:      atomic.LoadInt64(&s.BatchesDropped),
		ConnectionsAccepted: atomic.LoadInt64(&s.ConnectionsAccepted),
	}
}

// Text renders the snapshot as one "name value" line per counter, in the
// style of Connection.StatsText. Neither the HTTP stats endpoint nor
// --debug-dump includes this output.
func (s Snapshot) Text(name string) string {
	return fmt.Sprintf(
		"%s.packets_received %d\n%s.bytes_received %d\n%s.samples_written %d\n%s.parse_errors %d\n%s.database_errors %d\n%s.batches_dropped %d\n%s.connections_accepted %d\n",
		name, s.PacketsReceived,
		name, s.BytesReceived,
		name, s.SamplesWritten,
		name, s.ParseErrors,
		name, s.DatabaseErrors,
		name, s.BatchesDropped,
		name, s.ConnectionsAccepted,
	)
}
