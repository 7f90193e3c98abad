package stevedore

import (
	"context"
	"fmt"
	"strings"
)

// ExecOptions shape a single remote command. Dir is the remote working
// directory, always passed explicitly because the transport does not
// promise state persistence between commands. Env is a pre-rendered
// prefix of export statements (see EnvList.AsExport).
type ExecOptions struct {
	Dir string
	Env string
}

// ExecResult is the outcome of a remote command that ran to completion,
// whatever its exit code.
type ExecResult struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// ExitError returns nil for a zero exit code and otherwise an error
// describing the failure, favouring captured stderr.
func (r *ExecResult) ExitError() error {
	if r.ExitCode == 0 {
		return nil
	}
	out := strings.TrimSpace(string(r.Stderr))
	if out == "" {
		out = strings.TrimSpace(string(r.Stdout))
	}
	if out == "" {
		return fmt.Errorf("exit %d", r.ExitCode)
	}
	return fmt.Errorf("exit %d: %s", r.ExitCode, out)
}

// Client is the remote-execution transport a deployment run drives. One
// Client serves exactly one run: Connect once, any number of Exec and
// Put calls, Close once.
//
// Exec returns a non-nil error only for transport trouble or context
// expiry; a command that completes with a non-zero exit code is a valid
// ExecResult, classified by the caller. Context expiry surfaces
// ctx.Err() so callers can tell a timeout from a broken session.
type Client interface {
	Connect(ctx context.Context) error
	Exec(ctx context.Context, command string, opts ExecOptions) (*ExecResult, error)
	Put(ctx context.Context, localPath, remotePath string) error
	Close() error
}
