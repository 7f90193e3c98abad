package stevedore

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
)

// transfer ships the local source tree to the host: package it into a
// tar.gz archive under a run-scoped name, upload, create the target
// directory, unpack into it, and drop both temporary copies. The local
// archive is removed on every exit path; the remote one is removed best
// effort once it exists, without masking the step that failed.
func (s *Stevedore) transfer(ctx context.Context, dep *Deployment, token string) error {
	name := fmt.Sprintf("stevedore-%s.tar.gz", token)
	local := filepath.Join(os.TempDir(), name)
	remote := path.Join("/tmp", name)

	s.log.Info("stage", "stage", StageTransferring.String(), "source", dep.SourcePath, "target", dep.TargetPath)

	defer os.Remove(local)
	if err := archiveTree(dep.SourcePath, local, DefaultExcludes); err != nil {
		return &TransferError{Step: "package", Err: err}
	}

	if err := s.client.Put(ctx, local, remote); err != nil {
		return &TransferError{Step: "upload", Err: err}
	}
	defer func() {
		if err := s.exec(ctx, remoteRemoveCommand(remote)); err != nil {
			s.log.Warn("removing remote archive", "remote", remote, "error", err)
		}
	}()

	if err := s.exec(ctx, remoteMkdirCommand(dep.TargetPath)); err != nil {
		return &TransferError{Step: "mkdir", Err: err}
	}
	if err := s.exec(ctx, remoteUntarCommand(remote, dep.TargetPath)); err != nil {
		return &TransferError{Step: "extract", Err: err}
	}

	s.log.Info("source tree deployed", "target", dep.TargetPath)
	return nil
}
