package logger

// Standard field keys for structured logging.
// Use these keys consistently so log lines can be aggregated and queried.
const (
	// ========================================================================
	// File Objects
	// ========================================================================
	KeyID       = "id"       // Hex identifier of a file object
	KeyType     = "type"     // File object type: regular, directory, symlink
	KeyRefs     = "refs"     // Reference count of a resident entry
	KeySize     = "size"     // Logical size in bytes
	KeyOldID    = "old_id"   // First identifier of a dual-object operation
	KeyNewID    = "new_id"   // Second identifier of a dual-object operation
	KeyOp       = "op"       // Registry operation: open, create, close, gc
	KeyResident = "resident" // Number of resident objects
	KeyClosed   = "closed"   // Number of closed-but-cached objects
	KeyEvicted  = "evicted"  // Number of objects evicted in a batch
	KeyFailures = "failures" // Number of failures in a batch

	// ========================================================================
	// Storage Backend
	// ========================================================================
	KeyStore  = "store"  // Blob store type: memory, filesystem, badger, s3
	KeyBucket = "bucket" // S3 bucket
	KeyPath   = "path"   // Filesystem path

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyInterval   = "interval"    // Sweeper interval
)
