// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// Rebuild attributes
	RebuildIDKey          = "rebuild.id"
	RebuildAutoResolveKey = "rebuild.auto_resolve"
	RebuildProgramsKey    = "rebuild.programs"
	RebuildCandidatesKey  = "rebuild.candidates"
	RebuildPendingKey     = "rebuild.pending"
	RebuildConflictedKey  = "rebuild.conflicted"
	RebuildClustersKey    = "rebuild.clusters"

	// Recording attributes
	ProgramIDKey = "recording.program_id"
	SourceIDKey  = "recording.source_id"
	InputIDKey   = "recording.input_id"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// RebuildAttributes describes a recording list rebuild.
func RebuildAttributes(id string, autoResolve bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(RebuildIDKey, id),
		attribute.Bool(RebuildAutoResolveKey, autoResolve),
	}
}

// RebuildResultAttributes describes the outcome of a rebuild.
func RebuildResultAttributes(programs, candidates, pending, conflicted, clusters int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(RebuildProgramsKey, programs),
		attribute.Int(RebuildCandidatesKey, candidates),
		attribute.Int(RebuildPendingKey, pending),
		attribute.Int(RebuildConflictedKey, conflicted),
		attribute.Int(RebuildClustersKey, clusters),
	}
}

// RecordingAttributes describes a single recording. Zero ids are omitted.
func RecordingAttributes(programID string, sourceID, inputID int) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if programID != "" {
		attrs = append(attrs, attribute.String(ProgramIDKey, programID))
	}
	if sourceID != 0 {
		attrs = append(attrs, attribute.Int(SourceIDKey, sourceID))
	}
	if inputID != 0 {
		attrs = append(attrs, attribute.Int(InputIDKey, inputID))
	}
	return attrs
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
