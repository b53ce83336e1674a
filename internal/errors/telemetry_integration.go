// Package errors - telemetry integration (optional)
package errors

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/getsentry/sentry-go"
)

// TelemetryReporter is an interface for reporting errors to telemetry systems
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

// SentryReporter implements TelemetryReporter for Sentry
type SentryReporter struct {
	enabled bool
	capture func(event *sentry.Event)
}

// NewSentryReporter creates a new Sentry telemetry reporter. sentry.Init must
// have been called by the caller when enabled is true.
func NewSentryReporter(enabled bool) *SentryReporter {
	return &SentryReporter{
		enabled: enabled,
		capture: func(event *sentry.Event) { sentry.CaptureEvent(event) },
	}
}

// IsEnabled returns whether Sentry telemetry is enabled
func (sr *SentryReporter) IsEnabled() bool {
	return sr != nil && sr.enabled
}

// ReportError reports an enhanced error to Sentry with path and key scrubbing
func (sr *SentryReporter) ReportError(ee *EnhancedError) {
	if !sr.IsEnabled() || ee == nil || ee.IsReported() {
		return
	}
	sr.capture(buildSentryEvent(ee))
	ee.MarkReported()
}

// buildSentryEvent converts an enhanced error into a Sentry event
func buildSentryEvent(ee *EnhancedError) *sentry.Event {
	title := generateErrorTitle(ee)
	message := scrubMessage(fmt.Sprintf("[%s] %s", ee.Category, ee.GetMessage()))

	event := sentry.NewEvent()
	event.Message = message
	event.Level = getErrorLevel(ee.Category)
	event.Fingerprint = []string{title, ee.GetComponent(), string(ee.Category)}
	event.Tags = map[string]string{
		"component":  ee.GetComponent(),
		"category":   string(ee.Category),
		"priority":   ee.GetPriority(),
		"error_type": fmt.Sprintf("%T", ee.Err),
	}
	event.Exception = []sentry.Exception{{Type: title, Value: message}}

	for key, value := range ee.GetContext() {
		if s, ok := value.(string); ok {
			value = scrubMessage(s)
		}
		event.Contexts[key] = sentry.Context{"value": value}
	}
	return event
}

// generateErrorTitle creates a grouping title from component, category and operation
func generateErrorTitle(ee *EnhancedError) string {
	var parts []string
	if c := ee.GetComponent(); c != "" && c != ComponentUnknown {
		parts = append(parts, titleCase(c))
	}
	parts = append(parts, formatCategoryForTitle(ee.Category))
	if op, ok := ee.GetContext()["operation"].(string); ok && op != "" {
		words := strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(op))
		for i, w := range words {
			words[i] = titleCase(w)
		}
		parts = append(parts, strings.Join(words, " "))
	}
	return strings.Join(parts, " ")
}

// formatCategoryForTitle converts error categories to human-readable titles
func formatCategoryForTitle(category ErrorCategory) string {
	switch category {
	case CategoryValidation:
		return "Validation Error"
	case CategoryFileIO:
		return "File I/O Error"
	case CategoryModelInit:
		return "Model Initialization Error"
	case CategoryModelLoad:
		return "Model Loading Error"
	case CategoryLabelLoad:
		return "Label Loading Error"
	case CategoryConfiguration:
		return "Configuration Error"
	case CategoryAudioDecode:
		return "Audio Decode Error"
	case CategoryAudioSource:
		return "Audio Source Error"
	case CategoryAudioAnalysis:
		return "Audio Analysis Error"
	case CategoryWorker:
		return "Worker Pool Error"
	case CategoryMetaProfile:
		return "Meta Profile Error"
	case CategorySystem:
		return "System Error"
	default:
		return string(category)
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// getErrorLevel returns appropriate Sentry level based on category
func getErrorLevel(category ErrorCategory) sentry.Level {
	switch category {
	case CategoryModelInit, CategoryModelLoad, CategoryLabelLoad, CategoryConfiguration, CategorySystem:
		return sentry.LevelError
	case CategoryFileIO, CategoryAudio, CategoryAudioDecode, CategoryAudioSource:
		return sentry.LevelWarning
	case CategoryLimit, CategoryCancellation:
		return sentry.LevelInfo
	default:
		return sentry.LevelError
	}
}

var (
	homePathPattern = regexp.MustCompile(`(/home|/Users|/root)/[^\s/]+`)
	coordPattern    = regexp.MustCompile(`-?\d{1,3}\.\d{3,}`)
	keyPattern      = regexp.MustCompile(`(?i)(dsn|token|key)[=:]\S+`)
)

// scrubMessage removes user paths, precise coordinates and secrets
func scrubMessage(message string) string {
	scrubbed := homePathPattern.ReplaceAllString(message, "$1/[USER]")
	scrubbed = coordPattern.ReplaceAllString(scrubbed, "[COORD]")
	return keyPattern.ReplaceAllString(scrubbed, "$1=[REDACTED]")
}
