package stevedore

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// fakeCall records one transport call made by the engine.
type fakeCall struct {
	op       string // connect, exec or put
	command  string
	opts     ExecOptions
	local    string
	remote   string
	deadline time.Time
}

// fakeClient is a scripted in-memory transport. Every call is recorded
// in order; exec behavior is overridable per test and defaults to a
// silent zero exit.
type fakeClient struct {
	calls      []fakeCall
	closed     int
	connectErr error
	putErr     error
	exec       func(command string, opts ExecOptions) (*ExecResult, error)
}

var _ Client = (*fakeClient)(nil)

func (c *fakeClient) Connect(ctx context.Context) error {
	c.calls = append(c.calls, fakeCall{op: "connect"})
	return c.connectErr
}

func (c *fakeClient) Exec(ctx context.Context, command string, opts ExecOptions) (*ExecResult, error) {
	call := fakeCall{op: "exec", command: command, opts: opts}
	if d, ok := ctx.Deadline(); ok {
		call.deadline = d
	}
	c.calls = append(c.calls, call)
	if c.exec != nil {
		return c.exec(command, opts)
	}
	return &ExecResult{}, nil
}

func (c *fakeClient) Put(ctx context.Context, localPath, remotePath string) error {
	c.calls = append(c.calls, fakeCall{op: "put", local: localPath, remote: remotePath})
	return c.putErr
}

func (c *fakeClient) Close() error {
	c.closed++
	return nil
}

// commands returns the executed command lines in order.
func (c *fakeClient) commands() []string {
	var cmds []string
	for _, call := range c.calls {
		if call.op == "exec" {
			cmds = append(cmds, call.command)
		}
	}
	return cmds
}

// ops returns the kinds of all recorded calls in order.
func (c *fakeClient) ops() []string {
	ops := make([]string, len(c.calls))
	for i, call := range c.calls {
		ops[i] = call.op
	}
	return ops
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
