package stevedore

// Deployment carries the immutable parameters of a single run. A value
// belongs to exactly one run; nothing is persisted between runs and
// nothing is shared across concurrent ones.
type Deployment struct {
	Host         string
	Port         int
	User         string
	Password     string
	IdentityFile string
	TargetPath   string
	SourcePath   string
}

// ApplyDefaults fills in the parameters that have documented defaults.
func (d *Deployment) ApplyDefaults() {
	if d.Port == 0 {
		d.Port = 22
	}
	if d.SourcePath == "" {
		d.SourcePath = "."
	}
}

// Validate reports the first configuration problem as a *ConfigError.
// It runs before any transport call: exactly one of password and
// identity file must be supplied, and host and target path are
// mandatory.
func (d *Deployment) Validate() error {
	if d.Host == "" {
		return &ConfigError{Reason: "host is required"}
	}
	if d.TargetPath == "" {
		return &ConfigError{Reason: "target path is required"}
	}
	if d.Password == "" && d.IdentityFile == "" {
		return &ConfigError{Reason: "either a password or an identity file is required"}
	}
	if d.Password != "" && d.IdentityFile != "" {
		return &ConfigError{Reason: "password and identity file are mutually exclusive"}
	}
	return nil
}
