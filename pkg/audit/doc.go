// Package audit records administrative actions in an append-only log.
//
// # Overview
//
// Writes go through a Recorder, which never fails its caller: if the sink
// rejects an entry the failure is logged to a separate logrus diagnostic
// logger and counted. Every mutating admin action produces exactly one entry
// whose result is success or failure.
//
// # Sinks
//
//   - DBSink: the audit_log table, also implements Store for queries
//   - MultiSink: fan-out to several sinks
//   - MemorySink: in-process, for tests
//
// # Usage Example
//
//	diag, closer, err := audit.NewDiagnosticLogger("", "info")
//	defer closer.Close()
//
//	sink, err := audit.NewDBSink(db)
//	rec := audit.NewRecorder(sink, diag, audit.WithFailureCounter(metrics))
//
//	rec.Record(ctx, audit.Entry{
//		ActorID:  &actorID,
//		Action:   "set_role",
//		Resource: "membership",
//		Result:   audit.ResultFailure,
//		Reason:   "insufficient permissions",
//	})
package audit
