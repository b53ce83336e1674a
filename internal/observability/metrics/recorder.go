// Package metrics provides Prometheus metrics for the analysis pipeline.
package metrics

// Recorder defines the metrics the analysis pipeline records.
// Components depend on this interface rather than on Prometheus types.
type Recorder interface {
	// RecordOperation records an operation with its status, e.g. a chunk
	// with the processor outcome or a classification with success or error.
	RecordOperation(operation, status string)

	// RecordDuration records the duration of an operation in seconds.
	RecordDuration(operation string, seconds float64)

	// RecordError records an error occurrence with its category.
	RecordError(operation, errorType string)

	// RecordDetection counts a reported species by detection source.
	RecordDetection(source, species string)

	// SetQueueDepth publishes the current length of a bounded queue.
	SetQueueDepth(queue string, depth int)

	// SetAudioLevel publishes the live input level in dBFS.
	SetAudioLevel(db float64)
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

func (NoopRecorder) RecordOperation(string, string) {}
func (NoopRecorder) RecordDuration(string, float64) {}
func (NoopRecorder) RecordError(string, string)     {}
func (NoopRecorder) RecordDetection(string, string) {}
func (NoopRecorder) SetQueueDepth(string, int)      {}
func (NoopRecorder) SetAudioLevel(float64)          {}

var _ Recorder = NoopRecorder{}
