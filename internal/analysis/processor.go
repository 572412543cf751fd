// SPDX-License-Identifier: MIT
package analysis

// FrameProcessor turns captured frames into snapshots. It is called from the
// real-time capture callback, so implementations must not block.
type FrameProcessor interface {
	Process(frame Frame) Snapshot
}

// SnapshotProvider exposes the latest analysis result to readers on other
// goroutines (status reporter, monitor).
type SnapshotProvider interface {
	Last() Snapshot
	Stats() Stats
}

// Compile-time checks for interface implementations.
var _ FrameProcessor = (*Analyzer)(nil)
var _ SnapshotProvider = (*Analyzer)(nil)
