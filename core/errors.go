package core

import "errors"

// Sentinel errors shared by the engines. Callers match with errors.Is.
var (
	// ErrNoSuitableWorkflow indicates that none of the selector forms
	// (explicit id, agent list, keyword detection) resolved to a workflow.
	ErrNoSuitableWorkflow = errors.New("no suitable workflow")

	// ErrAgentNotFound indicates a roster lookup miss. Workflow steps treat
	// this as skippable; direct chat treats it as fatal.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrInvalidState indicates a lifecycle operation (pause/resume/cancel)
	// was attempted against an execution not in the matching precondition
	// state. Engines ignore such calls rather than failing the execution.
	ErrInvalidState = errors.New("invalid execution state")
)
