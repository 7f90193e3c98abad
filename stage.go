package stevedore

// Stage is one phase of the deployment pipeline. A run passes through
// every stage exactly once, in pipeline order; hook stages holding no
// hooks are skipped as no-ops.
type Stage int

const (
	StageConnecting Stage = iota
	StageApplicationStop
	StageBeforeInstall
	StageTransferring
	StageSettingPermissions
	StageAfterInstall
	StageApplicationStart
	StageValidateService
	StageDone
	StageFailed
)

var stageNames = [...]string{
	"Connecting",
	"ApplicationStop",
	"BeforeInstall",
	"Transferring",
	"SettingPermissions",
	"AfterInstall",
	"ApplicationStart",
	"ValidateService",
	"Done",
	"Failed",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "Unknown"
	}
	return stageNames[s]
}

// IsHook reports whether a deployment spec may attach hooks to s. The
// stage name doubles as the spec's hooks mapping key.
func (s Stage) IsHook() bool {
	switch s {
	case StageApplicationStop, StageBeforeInstall, StageAfterInstall,
		StageApplicationStart, StageValidateService:
		return true
	}
	return false
}

// pipeline is the fixed stage order of a deployment run. Changing the
// lifecycle means editing this list, not the driver loop.
var pipeline = [...]Stage{
	StageConnecting,
	StageApplicationStop,
	StageBeforeInstall,
	StageTransferring,
	StageSettingPermissions,
	StageAfterInstall,
	StageApplicationStart,
	StageValidateService,
}

func knownHookStage(name string) bool {
	for _, s := range pipeline {
		if s.IsHook() && s.String() == name {
			return true
		}
	}
	return false
}
