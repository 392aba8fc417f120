package models

// ExecutionResult is the uniform outcome every command backend produces.
type ExecutionResult struct {
	Success  bool   `json:"success"`
	Output   string `json:"output"`
	Error    string `json:"error,omitempty"`
	ExitCode *int   `json:"exit_code,omitempty"`

	Backend      string `json:"backend,omitempty"`
	DeviceFamily string `json:"device_family,omitempty"`
	DurationMS   int64  `json:"duration_ms,omitempty"`
}

// Failure builds an unsuccessful result carrying msg as its error.
func Failure(msg string) ExecutionResult {
	return ExecutionResult{Success: false, Error: msg}
}

// ExitCodeOf returns a pointer to code for ExecutionResult.ExitCode.
func ExitCodeOf(code int) *int {
	return &code
}

// ExecutionSummary is returned by the orchestrator after an execution attempt.
type ExecutionSummary struct {
	RemediationID string            `json:"remediation_id"`
	Status        RemediationStatus `json:"status"`
	Result        ExecutionResult   `json:"result"`
}
