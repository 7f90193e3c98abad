package stevedore

import (
	"context"
	"fmt"
	"path"
)

// Commands renders the remote commands a rule issues against the target
// tree: a find-driven chmod when a mode is set, a find-driven chown
// when owner and group are both set. A rule with neither renders
// nothing. Matching is restricted to plain files; other `type` values
// in a rule are accepted but not acted on.
func (r PermissionRule) Commands(targetPath string) []string {
	dir := path.Join(targetPath, r.Object)
	match := ""
	if r.Pattern != "" {
		match = fmt.Sprintf(" -name \"%s\"", r.Pattern)
	}

	var cmds []string
	if r.Mode != "" {
		cmds = append(cmds, fmt.Sprintf("find \"%s\" -type f%s -exec chmod %s {} +", dir, match, r.Mode))
	}
	if r.Owner != "" && r.Group != "" {
		cmds = append(cmds, fmt.Sprintf("find \"%s\" -type f%s -exec chown %s:%s {} +", dir, match, r.Owner, r.Group))
	}
	return cmds
}

// applyPermissions walks the rules in document order, one remote
// command at a time. Later rules win over earlier ones on files both
// match. The first failing command fails the run.
func (s *Stevedore) applyPermissions(ctx context.Context, dep *Deployment, rules []PermissionRule) error {
	if len(rules) == 0 {
		s.log.Debug("no permission rules, skipping stage", "stage", StageSettingPermissions.String())
		return nil
	}
	s.log.Info("stage", "stage", StageSettingPermissions.String(), "rules", len(rules))

	for _, rule := range rules {
		for _, command := range rule.Commands(dep.TargetPath) {
			s.log.Debug("applying permissions", "object", rule.Object, "command", command)
			if err := s.exec(ctx, command); err != nil {
				return &PermissionError{Object: rule.Object, Pattern: rule.Pattern, Err: err}
			}
		}
	}
	return nil
}
