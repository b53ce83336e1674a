// Package metrics provides constants used across metric definitions.
package metrics

import "time"

// Operation names recorded by the pipeline.
const (
	// OpChunk is one chunk passing through the processor, labelled by outcome.
	OpChunk = "chunk"
	// OpClassify is one classifier invocation.
	OpClassify = "classify"
	// OpDecode is a whole file decode.
	OpDecode = "decode"
	// OpMetaProfile is a MetaProfile build.
	OpMetaProfile = "meta_profile"
	// OpCapture is live audio capture.
	OpCapture = "capture"
	// OpFileAnalysis is one analyzed file.
	OpFileAnalysis = "file_analysis"
)

// Operation statuses.
const (
	StatusSuccess  = "success"
	StatusError    = "error"
	StatusAccepted = "accepted"
	StatusDropped  = "dropped"
)

// Detection sources.
const (
	SourceChunk     = "chunk"
	SourceAnchor    = "anchor"
	SourceConfirmed = "confirmed"
)

// Queue names for SetQueueDepth.
const (
	QueueChunks  = "chunks"
	QueueResults = "results"
)

// ShutdownTimeout bounds the metrics server shutdown.
const ShutdownTimeout = 5 * time.Second
