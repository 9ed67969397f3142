// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Field names shared by every recsched log line. Dashboards and alerts key
// on these, so renaming one is a breaking change.
const (
	// Correlation
	FieldRequestID = "request_id"
	FieldRebuildID = "rebuild_id"
	FieldTrigger   = "trigger"
	FieldComponent = "component"
	FieldEvent     = "event"

	// Candidate
	FieldProgramID = "program_id"
	FieldRuleID    = "rule_id"
	FieldTitle     = "title"
	FieldPriority  = "priority"
	FieldStatus    = "status"
	FieldReason    = "reason"

	// Tuner layout
	FieldCardID   = "card_id"
	FieldInputID  = "input_id"
	FieldSourceID = "source_id"
	FieldChannel  = "channel"

	// Rebuild and resolution counters
	FieldAutoResolve = "auto_resolve"
	FieldPrograms    = "programs"
	FieldCandidates  = "candidates"
	FieldPending     = "pending"
	FieldConflicted  = "conflicted"
	FieldInvalid     = "invalid"
	FieldClusters    = "clusters"
	FieldClusterSize = "cluster_size"
	FieldDropped     = "dropped"
	FieldDurationMs  = "duration_ms"

	// Files and settings
	FieldPath = "path"
	FieldKey  = "key"
)
