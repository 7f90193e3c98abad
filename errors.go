package stevedore

import (
	"fmt"
	"strings"
)

// ConfigError reports an invalid or incomplete set of run parameters.
// It is always raised before the first transport call.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration: %s", e.Reason)
}

// SpecError reports a deployment spec that exists but cannot be used.
// A missing spec file is not a SpecError; see Load.
type SpecError struct {
	Path string
	Err  error
}

func (e *SpecError) Error() string {
	return fmt.Sprintf("deployment spec %s: %v", e.Path, e.Err)
}

func (e *SpecError) Unwrap() error { return e.Err }

// HookError reports a hook script that ran but did not succeed, either
// by exiting non-zero or by exceeding its timeout. The two cases are
// distinguished by TimedOut. Captured output is carried for diagnostics;
// stderr wins the error message, stdout fills in when stderr is empty.
type HookError struct {
	Location string
	ExitCode int
	Timeout  int
	TimedOut bool
	Stdout   string
	Stderr   string
}

func (e *HookError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("hook %s: timed out after %ds", e.Location, e.Timeout)
	}
	out := strings.TrimSpace(e.Stderr)
	if out == "" {
		out = strings.TrimSpace(e.Stdout)
	}
	if out == "" {
		return fmt.Sprintf("hook %s: exit %d", e.Location, e.ExitCode)
	}
	return fmt.Sprintf("hook %s: exit %d: %s", e.Location, e.ExitCode, out)
}

// TransferError reports a failed file-transfer step. Step is one of
// "package", "upload", "mkdir" or "extract".
type TransferError struct {
	Step string
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer: %s: %v", e.Step, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// PermissionError reports a permission rule whose remote command failed.
type PermissionError struct {
	Object  string
	Pattern string
	Err     error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permissions: %s: %v", e.Object, e.Err)
}

func (e *PermissionError) Unwrap() error { return e.Err }

// DeploymentError is what Deploy returns on failure: the stage the run
// failed at plus the underlying cause.
type DeploymentError struct {
	Stage Stage
	Err   error
}

func (e *DeploymentError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *DeploymentError) Unwrap() error { return e.Err }
