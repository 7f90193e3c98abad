// Package stevedore drives single-host deployments over SSH: it ships a
// local source tree to a remote target directory and runs operator
// scripts at fixed lifecycle stages, as declared by a deployspec file.
// A run is one deterministic, fail-fast pipeline; the first error at
// any stage ends it with no rollback of earlier stages.
package stevedore

import (
	"context"
	"io"
	"log/slog"

	"github.com/google/uuid"
)

const VERSION = "0.1"

// Stevedore is the deployment lifecycle engine. It owns no remote state
// beyond the transport it drives; every side effect of a run happens
// through Client calls.
type Stevedore struct {
	client Client
	log    *slog.Logger
	output io.Writer
	hooks  *HookRunner
}

// Option adjusts engine construction.
type Option func(*Stevedore)

// WithLogger routes the engine's structured log events. Defaults to
// slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(s *Stevedore) {
		if log != nil {
			s.log = log
		}
	}
}

// WithOutput routes surfaced hook output. Defaults to discarding it.
func WithOutput(out io.Writer) Option {
	return func(s *Stevedore) {
		if out != nil {
			s.output = out
		}
	}
}

// New returns an engine for a single deployment run over the given
// transport. The client is expected to be unconnected; the engine
// connects and closes it itself.
func New(client Client, opts ...Option) *Stevedore {
	s := &Stevedore{
		client: client,
		log:    slog.Default(),
		output: io.Discard,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hooks = NewHookRunner(client, s.log, s.output)
	return s
}

// Deploy runs the full pipeline against one host. Stages execute
// strictly in order; a hook stage with no hooks is a no-op transition.
// The first error anywhere comes back as a *DeploymentError naming the
// failing stage, and no later stage runs. The transport connection is
// released on every exit path once it opened.
func (s *Stevedore) Deploy(ctx context.Context, dep *Deployment, spec *DeploySpec) error {
	dep.ApplyDefaults()
	if err := dep.Validate(); err != nil {
		return err
	}
	if spec == nil {
		spec = &DeploySpec{}
	}
	if spec.Empty() {
		s.log.Info("no hooks or permissions declared, plain file copy", "target", dep.TargetPath)
	}

	// Run-scoped token keeping concurrent or retried runs from
	// colliding on temporary archive names.
	token := uuid.NewString()
	env := spec.Env.AsExport()

	for _, stage := range pipeline {
		var err error
		switch stage {
		case StageConnecting:
			s.log.Info("stage", "stage", stage.String(), "host", dep.Host, "port", dep.Port, "user", dep.User)
			if err = s.client.Connect(ctx); err == nil {
				defer s.client.Close()
			}
		case StageTransferring:
			err = s.transfer(ctx, dep, token)
		case StageSettingPermissions:
			err = s.applyPermissions(ctx, dep, spec.Permissions)
		default:
			err = s.runStage(ctx, stage, dep, spec, env)
		}
		if err != nil {
			s.log.Error("deployment failed", "stage", stage.String(), "state", StageFailed.String(), "error", err)
			return &DeploymentError{Stage: stage, Err: err}
		}
	}

	s.log.Info("deployment complete", "state", StageDone.String(), "target", dep.TargetPath)
	return nil
}

// runStage executes the hooks of one stage in declaration order,
// stopping at the first failure.
func (s *Stevedore) runStage(ctx context.Context, stage Stage, dep *Deployment, spec *DeploySpec, env string) error {
	hooks := spec.StageHooks(stage)
	if len(hooks) == 0 {
		s.log.Debug("no hooks, skipping stage", "stage", stage.String())
		return nil
	}
	s.log.Info("stage", "stage", stage.String(), "hooks", len(hooks))

	for _, hook := range hooks {
		if err := s.hooks.Run(ctx, stage, hook, dep, env); err != nil {
			return err
		}
	}
	return nil
}

// exec runs one remote command and folds a non-zero exit into the
// returned error.
func (s *Stevedore) exec(ctx context.Context, command string) error {
	res, err := s.client.Exec(ctx, command, ExecOptions{})
	if err != nil {
		return err
	}
	return res.ExitError()
}
