// Package errors provides centralized error handling with optional telemetry integration
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"runtime"
	"strings"
	"sync"
	"time"
)

// ErrorCategory represents the type of error for better categorization
type ErrorCategory string

const (
	CategoryAudioServer   ErrorCategory = "audio-server"   // Session or protocol level failures
	CategoryStream        ErrorCategory = "stream"         // Stream lifecycle and blocking IO
	CategoryDevice        ErrorCategory = "device"         // Device selection and enumeration
	CategoryValidation    ErrorCategory = "validation"     // Caller input rejected by open / format checks
	CategoryConfiguration ErrorCategory = "configuration"  // Settings and capacity limits
	CategoryResource      ErrorCategory = "resource"       // Buffer and memory sizing
	CategorySystem        ErrorCategory = "system-resource"
	CategoryFileIO        ErrorCategory = "file-io"
	CategoryState         ErrorCategory = "state"
	CategoryTimeout       ErrorCategory = "timeout"
	CategoryCancellation  ErrorCategory = "cancellation"
	CategoryGeneric       ErrorCategory = "generic"
)

// ComponentUnknown is used when the component cannot be determined.
const ComponentUnknown = "unknown"

// EnhancedError wraps an error with additional context and metadata
type EnhancedError struct {
	Err       error          // Original error
	component string         // Component where error occurred (lazily detected)
	Category  ErrorCategory  // Error category for better grouping
	Context   map[string]any // Additional context data
	Timestamp time.Time      // When the error occurred
	reported  bool           // Whether telemetry has been sent
	mu        sync.RWMutex
	detected  bool // Whether component has been auto-detected
}

// Error implements the error interface
func (ee *EnhancedError) Error() string {
	return ee.Err.Error()
}

// Unwrap implements the error unwrapping interface
func (ee *EnhancedError) Unwrap() error {
	return ee.Err
}

// Is implements error type checking. Two enhanced errors match by category,
// anything else is matched against the wrapped error chain.
func (ee *EnhancedError) Is(target error) bool {
	if ee2, ok := target.(*EnhancedError); ok {
		return ee.Category == ee2.Category
	}
	return Is(ee.Err, target)
}

// GetComponent returns the component name, detecting it lazily if needed
func (ee *EnhancedError) GetComponent() string {
	ee.mu.RLock()
	if ee.detected || ee.component != "" {
		component := ee.component
		ee.mu.RUnlock()
		return component
	}
	ee.mu.RUnlock()

	ee.mu.Lock()
	defer ee.mu.Unlock()

	if ee.component == "" && !ee.detected {
		ee.component = detectComponent()
		ee.detected = true
		if ee.component == "" {
			ee.component = ComponentUnknown
		}
	}

	return ee.component
}

// GetCategory returns the error category
func (ee *EnhancedError) GetCategory() string {
	return string(ee.Category)
}

// GetContext returns a copy of the error context
func (ee *EnhancedError) GetContext() map[string]any {
	ee.mu.RLock()
	defer ee.mu.RUnlock()

	if ee.Context == nil {
		return nil
	}

	contextCopy := make(map[string]any, len(ee.Context))
	maps.Copy(contextCopy, ee.Context)
	return contextCopy
}

// MarkReported marks this error as reported to telemetry
func (ee *EnhancedError) MarkReported() {
	ee.mu.Lock()
	defer ee.mu.Unlock()
	ee.reported = true
}

// IsReported returns whether this error has been reported
func (ee *EnhancedError) IsReported() bool {
	ee.mu.RLock()
	defer ee.mu.RUnlock()
	return ee.reported
}

// ErrorBuilder provides a fluent interface for creating enhanced errors
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

// New creates a new error with enhanced context
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf creates a new formatted error with enhanced context
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component sets the component name (auto-detected if not set)
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

// Category sets the error category for better grouping
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Context adds context data to the error
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// DeviceContext adds device selection context
func (eb *ErrorBuilder) DeviceContext(index int, name string) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context["device_index"] = index
	if name != "" {
		eb.context["device_name"] = name
	}
	return eb
}

// StreamContext adds negotiated stream parameters
func (eb *ErrorBuilder) StreamContext(direction string, sampleRate float64, channels int) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	if direction != "" {
		eb.context["direction"] = direction
	}
	if sampleRate > 0 {
		eb.context["sample_rate"] = sampleRate
	}
	if channels > 0 {
		eb.context["channels"] = channels
	}
	return eb
}

// Build creates the EnhancedError and triggers optional telemetry reporting
func (eb *ErrorBuilder) Build() *EnhancedError {
	// Fast path: skip detection when nothing is listening
	if !hasActiveReporting.Load() {
		ee := &EnhancedError{
			Err:       eb.err,
			component: eb.component,
			Category:  eb.category,
			Context:   eb.context,
			Timestamp: time.Now(),
			detected:  eb.component != "",
		}
		if ee.component == "" {
			ee.component = ComponentUnknown
			ee.detected = true
		}
		if ee.Category == "" {
			ee.Category = CategoryGeneric
		}
		return ee
	}

	if eb.component == "" {
		eb.component = detectComponent()
	}

	if eb.category == "" {
		eb.category = detectCategory(eb.err, eb.component)
	}

	ee := &EnhancedError{
		Err:       eb.err,
		component: eb.component,
		Category:  eb.category,
		Context:   eb.context,
		Timestamp: time.Now(),
		detected:  true,
	}

	reportToTelemetry(ee)

	return ee
}

// componentPrefixes map package paths below the module to component names,
// most specific first
var componentPrefixes = []struct{ path, component string }{
	{"internal/audioserver/pulse", "audioserver.pulse"},
	{"internal/audioserver/miniaudio", "audioserver.miniaudio"},
	{"internal/audioserver/fake", "audioserver.fake"},
	{"internal/audioserver", "audioserver"},
	{"internal/hostapi", "hostapi"},
	{"internal/bridge", "bridge"},
	{"internal/conf", "configuration"},
	{"internal/observability", "observability"},
	{"cmd", "cli"},
}

const (
	modulePath  = "github.com/tphakala/pulsebridge/"
	packagePath = modulePath + "internal/errors"
)

// detectComponent names the first caller outside this package
func detectComponent() string {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !strings.HasPrefix(frame.Function, packagePath+".") {
			if component := componentOf(frame.Function); component != ComponentUnknown {
				return component
			}
		}
		if !more {
			return ComponentUnknown
		}
	}
}

// componentOf maps a fully qualified function name to its component
func componentOf(funcName string) string {
	rel, ok := strings.CutPrefix(funcName, modulePath)
	if !ok {
		return ComponentUnknown
	}
	for _, p := range componentPrefixes {
		if strings.HasPrefix(rel, p.path+".") || strings.HasPrefix(rel, p.path+"/") {
			return p.component
		}
	}
	// package name of the function
	if slash := strings.LastIndex(rel, "/"); slash >= 0 {
		rel = rel[slash+1:]
	}
	if dot := strings.Index(rel, "."); dot > 0 {
		return rel[:dot]
	}
	return ComponentUnknown
}

// detectCategory automatically detects error category based on error message and component
func detectCategory(err error, component string) ErrorCategory {
	var enhErr *EnhancedError
	if stderrors.As(err, &enhErr) && enhErr.Category != "" {
		return enhErr.Category
	}

	errorMsg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errorMsg, "connection"), strings.Contains(errorMsg, "server"):
		return CategoryAudioServer
	case strings.Contains(errorMsg, "timeout"), strings.Contains(errorMsg, "deadline"):
		return CategoryTimeout
	case strings.Contains(errorMsg, "canceled"), strings.Contains(errorMsg, "cancelled"):
		return CategoryCancellation
	case strings.Contains(errorMsg, "device"):
		return CategoryDevice
	case strings.Contains(errorMsg, "invalid"), strings.Contains(errorMsg, "unsupported"):
		return CategoryValidation
	case strings.Contains(errorMsg, "file"), strings.Contains(errorMsg, "open"):
		return CategoryFileIO
	}

	switch component {
	case "hostapi":
		return CategoryStream
	case "audioserver.pulse", "audioserver.miniaudio", "audioserver.fake":
		return CategoryAudioServer
	case "configuration":
		return CategoryConfiguration
	}

	return CategoryGeneric
}

// Standard library passthrough functions
// These allow this package to be a drop-in replacement for the standard errors package

// NewStd creates a new standard error (passthrough to standard library)
func NewStd(text string) error {
	return stderrors.New(text)
}

// Is reports whether any error in err's tree matches target (passthrough to standard library)
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's tree that matches target (passthrough to standard library)
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Join returns an error that wraps the given errors (passthrough to standard library)
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// IsCategory checks if an error is an EnhancedError with the specified category.
func IsCategory(err error, category ErrorCategory) bool {
	var enhancedErr *EnhancedError
	return As(err, &enhancedErr) && enhancedErr.Category == category
}
