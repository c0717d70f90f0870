package wal

// ============================================================================
// WAL Utility Functions
// Purpose: Provide WAL-related helper functionality
// ============================================================================

import (
	"io"
)

// ============================================================================
// File Operation Helpers
// ============================================================================

// GetLastEvent reads the last event from a WAL file
//
// Use cases:
// - NewWAL needs to get last_seq to continue numbering
// - Validate WAL integrity
//
// Parameters:
//
//	path - WAL file path
//
// Returns:
//
//	Last event, error (returns ErrEmptyWAL if file is empty)
func GetLastEvent(path string) (*Event, error) {
	// TODO: Implement last event reading
	// Strategy options:
	//
	// Option A: Scan from start to end (simple but slow)
	//   - Read line by line until EOF
	//   - Return the last successfully parsed event
	//
	// Option B: Search backwards from end (fast but complex)
	//   - Seek to end of file
	//   - Search backwards for last newline
	//   - Parse that line
	//
	// Option C: Maintain index file (fastest but requires extra maintenance)
	//   - WAL.index records position of each event
	//   - Jump directly to last event
	//
	// Consider: Which approach suits your scenario?

	return nil, nil
}

// CountEvents counts the total number of events in WAL
//
// Use cases:
// - Debugging and diagnostics
// - Statistics and monitoring
func CountEvents(path string) (int, error) {
	// TODO: Implement event counting
	// 1. Open file
	// 2. Read line by line using decoder
	// 3. Count successfully parsed events
	// 4. Ignore corrupted events? Or return error?

	return 0, nil
}

// ValidateWAL validates WAL file integrity
//
// Checks:
// - All events have correct JSON format
// - All events have correct checksums
// - seq is sequential and unique
//
// Returns:
//
//	error (if any issues found)
func ValidateWAL(path string) error {
	// TODO: Implement WAL validation
	// 1. Replay all events
	// 2. Validate each event's checksum
	// 3. Validate seq continuity:
	//    lastSeq := uint64(0)
	//    for each event:
	//      if event.Seq != lastSeq + 1:
	//        return error
	//      lastSeq = event.Seq
	// 4. Collect and report all errors (not just the first)

	return nil
}

// ============================================================================
// WAL Repair Tools (Advanced Features)
// ============================================================================

// RepairWAL attempts to repair a corrupted WAL
//
// Repair strategy:
// - Scan file, remove invalid events
// - Renumber seq (starting from 1, sequential)
// - Generate new WAL file
//
// Warning: This operation will change event sequence numbers!
func RepairWAL(srcPath, dstPath string) error {
	// TODO: Implement WAL repair (optional)
	// 1. Read from srcPath
	// 2. Filter valid events:
	//    - JSON is parsable
	//    - Checksum is correct
	// 3. Renumber seq
	// 4. Write to dstPath
	// 5. Consider:
	//    - How to handle events with checksum errors but valid JSON?
	//    - Should user confirmation be required?
	//    - Should removed events be logged?

	return nil
}

// TruncateWAL truncates WAL to specified sequence number
//
// Use cases:
// - Recover to a known good state
// - Roll back erroneous operations
//
// Parameters:
//
//	path - WAL file path
//	seq  - Keep up to this sequence number (exclusive)
func TruncateWAL(path string, seq uint64) error {
	// TODO: Implement WAL truncation (optional)
	// 1. Read all events
	// 2. Filter events with seq < targetSeq
	// 3. Write to new file
	// 4. Atomically replace old file
	// 5. Warning: Ensure operation atomicity!

	return nil
}

// ============================================================================
// Debugging and Diagnostic Tools
// ============================================================================

// DumpWAL outputs WAL contents (human-readable format)
//
// Use cases:
// - Debugging
// - Manual event inspection
func DumpWAL(path string, w io.Writer) error {
	// TODO: Implement WAL dump
	// 1. Read all events
	// 2. Format output:
	//    [Seq:1] ENQUEUE job-001 at 2024-01-01T00:00:00 (checksum:0x12345678)
	//    [Seq:2] DISPATCH job-001 at 2024-01-01T00:00:01 (checksum:0x87654321)
	// 3. Mark corrupted events

	return nil
}

// CompareWAL compares differences between two WAL files
//
// Use cases:
// - Testing
// - Verify Rotate correctness
func CompareWAL(path1, path2 string) ([]string, error) {
	// TODO: Implement WAL comparison (optional)
	// 1. Read all events from both files
	// 2. Compare:
	//    - Event count
	//    - Content of each event
	// 3. Return difference list

	return nil, nil
}

// ============================================================================
// Statistics and Analysis
// ============================================================================

// WALStats WAL statistics information
type WALStats struct {
	TotalEvents    int               // Total number of events
	EventTypes     map[EventType]int // Event count by type
	FirstSeq       uint64            // Sequence number of first event
	LastSeq        uint64            // Sequence number of last event
	TimeRange      [2]int64          // Time range [earliest, latest]
	CorruptedCount int               // Number of corrupted events
}

// GetWALStats retrieves WAL statistics
func GetWALStats(path string) (*WALStats, error) {
	// TODO: Implement statistics collection
	// 1. Scan entire WAL
	// 2. Collect various statistics
	// 3. Return WALStats structure

	return nil, nil
}

// TODO: Other utility tools to consider
//
// 1. WAL Merge:
//    - Merge multiple WAL files into one
//    - For historical data consolidation
//
// 2. WAL Split:
//    - Split large WAL file into multiple smaller files
//    - Split by time or seq range
//
// 3. WAL Compaction:
//    - Remove ENQUEUE/DISPATCH/ACK events for completed jobs
//    - Keep only necessary events (e.g., Dead jobs)
//
// 4. WAL Export:
//    - Convert to other formats (CSV, Parquet)
//    - For data analysis
