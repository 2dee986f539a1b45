// Package core defines the shared data types and collaborator interfaces used
// by the workflow and conversation engines. It intentionally contains no
// orchestration logic: engines live in their own packages and depend on the
// interfaces declared here (context window store, long-term memory store,
// usage logger, status sink) so that production implementations can be swapped
// in without touching engine code.
package core
