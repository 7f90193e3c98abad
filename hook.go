package stevedore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/goware/prefixer"
	"github.com/pkg/errors"
)

// HookRunner executes operator hooks against the transport. One hook at
// a time: the engine owns the ordering, the runner owns command
// construction, timeout enforcement and result classification.
type HookRunner struct {
	client Client
	log    *slog.Logger
	output io.Writer
}

// NewHookRunner returns a runner writing surfaced hook output to out.
// A nil logger falls back to slog.Default, a nil writer discards.
func NewHookRunner(client Client, log *slog.Logger, out io.Writer) *HookRunner {
	if log == nil {
		log = slog.Default()
	}
	if out == nil {
		out = io.Discard
	}
	return &HookRunner{client: client, log: log, output: out}
}

// hookCommand builds the remote invocation for a script. The privilege
// switch is applied only when runas names somebody other than the
// connecting user; sudo runs non-interactively so an elevation that
// would prompt for a password fails with a plain non-zero exit instead
// of hanging the run.
func hookCommand(script, runas, user string) string {
	if runas != "" && runas != user {
		return fmt.Sprintf("sudo -n -u %s /bin/sh \"%s\"", runas, script)
	}
	return fmt.Sprintf("/bin/sh \"%s\"", script)
}

// Run executes one hook and classifies the outcome. Success is exit
// code 0 exactly; anything else is a *HookError carrying both captured
// streams, with a timeout classified distinctly from a non-zero exit.
// A script missing on the host surfaces as an ordinary non-zero exit.
func (r *HookRunner) Run(ctx context.Context, stage Stage, hook Hook, dep *Deployment, env string) error {
	script := path.Join(dep.TargetPath, hook.Location)
	command := hookCommand(script, hook.RunAs, dep.User)

	timeout := hook.Timeout
	if timeout <= 0 {
		timeout = DefaultHookTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	r.log.Info("running hook", "stage", stage.String(), "hook", hook.Location, "timeout", timeout)

	res, err := r.client.Exec(ctx, command, ExecOptions{Dir: dep.TargetPath, Env: env})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &HookError{Location: hook.Location, Timeout: timeout, TimedOut: true}
		}
		return errors.Wrapf(err, "hook %s", hook.Location)
	}
	if res.ExitCode != 0 {
		return &HookError{
			Location: hook.Location,
			ExitCode: res.ExitCode,
			Stdout:   string(res.Stdout),
			Stderr:   string(res.Stderr),
		}
	}

	r.log.Info("hook complete", "stage", stage.String(), "hook", hook.Location)
	r.surface(stage, hook, res)
	return nil
}

// surface copies a successful hook's captured output to the run's
// output writer, each line prefixed with its origin. Output of a failed
// hook travels inside the HookError instead.
func (r *HookRunner) surface(stage Stage, hook Hook, res *ExecResult) {
	prefix := fmt.Sprintf("%s/%s | ", stage, hook.Location)
	for _, stream := range [][]byte{res.Stdout, res.Stderr} {
		if len(bytes.TrimSpace(stream)) == 0 {
			continue
		}
		_, err := io.Copy(r.output, prefixer.New(bytes.NewReader(stream), prefix))
		if err != nil && err != io.EOF {
			r.log.Warn("surfacing hook output", "hook", hook.Location, "error", err)
		}
	}
}
