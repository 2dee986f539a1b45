// Package workflow implements the workflow engine: it drives a registered or
// ad-hoc ordered list of steps, one agent per step, threading output and an
// extracted structured hand-off payload from each completed step into the
// next step's input. Executions are retained in a process-lifetime in-memory
// table; pause, resume and cancel operate on that table.
package workflow
