// Package store provides durable storage for event version records.
//
// The catalog is a single SQLite file holding one `events` table whose
// columns are the core fields plus the extra fields configured at catalog
// initialization, keyed by (evid, ver). WAL mode allows concurrent readers
// during writes; every mutating operation runs in a short-lived immediate
// transaction and retries with bounded exponential backoff when the file is
// locked by another process.
//
// Version bookkeeping is optimistic: writers state which version they
// observed as latest, and the transaction re-checks that claim before
// committing, failing with a STALE error that callers retry from scratch.
package store
