package stevedore

import (
	"io/fs"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultSpecFile is the spec filename assumed when the operator gives
// no explicit path.
const DefaultSpecFile = "deployspec.yml"

// DefaultHookTimeout bounds hooks that declare no timeout of their own,
// in seconds.
const DefaultHookTimeout = 300

// DeploySpec represents the deployment spec YAML file: which scripts to
// run at which lifecycle stage, which permissions to set on the
// transferred tree, and which environment to hand every hook.
type DeploySpec struct {
	Version     string            `yaml:"version"`
	Env         EnvList           `yaml:"env"`
	Hooks       map[string][]Hook `yaml:"hooks"`
	Permissions []PermissionRule  `yaml:"permissions"`
}

// Hook is one operator script attached to a lifecycle stage. Location is
// relative to the deployment target root and is only resolved on the
// remote host at execution time.
type Hook struct {
	Location string `yaml:"location"`
	Timeout  int    `yaml:"timeout"`
	RunAs    string `yaml:"runas"`
}

// PermissionRule declares ownership and/or mode for remote files under
// Object (relative to the target root) whose names match Pattern. Owner
// and Group only take effect together; a rule carrying neither mode nor
// a full owner/group pair is a legal no-op.
type PermissionRule struct {
	Object  string   `yaml:"object"`
	Pattern string   `yaml:"pattern"`
	Owner   string   `yaml:"owner"`
	Group   string   `yaml:"group"`
	Mode    FileMode `yaml:"mode"`
	Type    []string `yaml:"type"`
}

// EnvVar is one environment variable exported into every hook
// invocation.
type EnvVar struct {
	Key   string
	Value string
}

// AsExport returns the variable as a shell export statement.
func (e EnvVar) AsExport() string {
	return `export ` + e.Key + `="` + e.Value + `";`
}

// EnvList keeps environment variables in document order.
type EnvList []EnvVar

func (e *EnvList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return errors.New("env must be a mapping")
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if value.Kind != yaml.ScalarNode {
			return errors.Errorf("env %s: value must be a scalar", key.Value)
		}
		*e = append(*e, EnvVar{Key: key.Value, Value: value.Value})
	}
	return nil
}

// AsExport renders the whole list as a prefix of export statements,
// ready to be glued in front of a remote command.
func (e EnvList) AsExport() string {
	var b strings.Builder
	for _, v := range e {
		b.WriteString(v.AsExport())
		b.WriteString(" ")
	}
	return b.String()
}

// FileMode is a permission mode held as a canonical octal string. The
// spec file may say 644, 0644, 0o644 or "644"; all collapse to "644"
// while parsing, so nothing downstream branches on the input shape.
type FileMode string

func (m *FileMode) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return errors.New("mode must be an octal scalar")
	}
	norm, err := normalizeMode(node.Value)
	if err != nil {
		return err
	}
	*m = norm
	return nil
}

func normalizeMode(raw string) (FileMode, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "0o") || strings.HasPrefix(s, "0O") {
		s = s[2:]
	}
	s = strings.TrimLeft(s, "0")
	if s == "" {
		if raw == "" {
			return "", errors.New("empty mode")
		}
		s = "0"
	}
	if len(s) > 4 {
		return "", errors.Errorf("mode %q out of range", raw)
	}
	for _, r := range s {
		if r < '0' || r > '7' {
			return "", errors.Errorf("mode %q is not octal", raw)
		}
	}
	return FileMode(s), nil
}

// Load reads the deployment spec at path. A missing file is not an
// error: a run without a spec degrades to a plain file copy, so an empty
// spec is returned instead. A file that exists but cannot be read or
// parsed, or that names an unknown hook stage, is a *SpecError and
// aborts the run before any remote side effect.
func Load(path string) (*DeploySpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &DeploySpec{}, nil
		}
		return nil, &SpecError{Path: path, Err: err}
	}
	var spec DeploySpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, &SpecError{Path: path, Err: err}
	}
	if err := spec.validate(); err != nil {
		return nil, &SpecError{Path: path, Err: err}
	}
	return &spec, nil
}

// validate checks the parsed document and fills in hook timeout
// defaults. Version is informational and deliberately not checked.
func (s *DeploySpec) validate() error {
	for stage, hooks := range s.Hooks {
		if !knownHookStage(stage) {
			return errors.Errorf("unknown hook stage %q", stage)
		}
		for i := range hooks {
			h := &hooks[i]
			if h.Location == "" {
				return errors.Errorf("%s hook #%d: missing location", stage, i+1)
			}
			if h.Timeout < 0 {
				return errors.Errorf("%s hook %s: negative timeout", stage, h.Location)
			}
			if h.Timeout == 0 {
				h.Timeout = DefaultHookTimeout
			}
		}
	}
	return nil
}

// StageHooks returns the hooks attached to a stage, in declaration
// order.
func (s *DeploySpec) StageHooks(stage Stage) []Hook {
	return s.Hooks[stage.String()]
}

// Empty reports whether the spec drives nothing beyond the file
// transfer itself.
func (s *DeploySpec) Empty() bool {
	return len(s.Hooks) == 0 && len(s.Permissions) == 0
}
