package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mikkeloscar/sshconfig"
	"github.com/spf13/viper"

	"github.com/harborlabs/stevedore"
	"github.com/harborlabs/stevedore/ssh"
)

// ErrUsage is returned when the host or target argument is missing.
var ErrUsage = errors.New("expected host and target-path arguments")

// options are the resolved run parameters, merged from defaults, the
// optional config file, STEVEDORE_* environment, the host argument and
// explicit flags, in that order of growing priority. An ssh_config
// alias match then fills whatever is still unset.
type options struct {
	specPath   string
	sourcePath string
	host       string
	port       int
	user       string
	password   string
	identity   string
	target     string
	sshConfig  string
	logLevel   string
	logFormat  string
	version    bool
}

func parseOptions(args []string, errOut io.Writer) (*options, error) {
	fs := flag.NewFlagSet("stevedore", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.Usage = func() {
		fmt.Fprintln(errOut, "Usage: stevedore [flags] [user@]host[:port] target-path")
		fmt.Fprintln(errOut, "The password credential is taken from STEVEDORE_PASSWORD or the config file, never from a flag.")
		fs.PrintDefaults()
	}

	specPath := fs.String("f", "", "deployment spec `file` (default \"deployspec.yml\")")
	source := fs.String("s", "", "local source `directory` (default \".\")")
	user := fs.String("u", "", "remote `user` (default from host argument, ssh config or $USER)")
	port := fs.Int("p", 0, "ssh `port` (default from host argument, ssh config or 22)")
	identity := fs.String("i", "", "private key `file`")
	sshConfigPath := fs.String("sshconfig", "", "OpenSSH config `file` for host alias resolution (default ~/.ssh/config)")
	configPath := fs.String("config", "", "stevedore config `file` (default .stevedore.yml in . or $HOME)")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn or error (default \"info\")")
	logFormat := fs.String("log-format", "", "log format: text or json (default \"text\")")
	version := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *version {
		return &options{version: true}, nil
	}

	v := viper.New()
	v.SetDefault("spec", stevedore.DefaultSpecFile)
	v.SetDefault("source", ".")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	if *configPath != "" {
		v.SetConfigFile(*configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else {
		v.SetConfigName(".stevedore")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix("STEVEDORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	visited := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		visited[f.Name] = true
		switch f.Name {
		case "f":
			v.Set("spec", *specPath)
		case "s":
			v.Set("source", *source)
		case "u":
			v.Set("user", *user)
		case "p":
			v.Set("port", *port)
		case "i":
			v.Set("identity", *identity)
		case "log-level":
			v.Set("log.level", *logLevel)
		case "log-format":
			v.Set("log.format", *logFormat)
		}
	})

	rest := fs.Args()
	if len(rest) != 2 {
		fs.Usage()
		return nil, ErrUsage
	}
	argUser, host, argPort, err := ssh.ParseAddr(rest[0])
	if err != nil {
		return nil, err
	}

	opts := &options{
		specPath:   v.GetString("spec"),
		sourcePath: v.GetString("source"),
		host:       host,
		port:       v.GetInt("port"),
		user:       v.GetString("user"),
		password:   v.GetString("password"),
		identity:   v.GetString("identity"),
		target:     rest[1],
		sshConfig:  *sshConfigPath,
		logLevel:   v.GetString("log.level"),
		logFormat:  v.GetString("log.format"),
	}

	// What the host argument spells out beats environment and config,
	// but not an explicit flag.
	if !visited["u"] && argUser != "" {
		opts.user = argUser
	}
	if !visited["p"] && argPort != 0 {
		opts.port = argPort
	}

	if err := opts.resolveSSHConfig(); err != nil {
		return nil, err
	}

	if opts.user == "" {
		opts.user = os.Getenv("USER")
	}
	if opts.port == 0 {
		opts.port = 22
	}
	return opts, nil
}

// resolveSSHConfig fills host name, user, port and identity from an
// OpenSSH client config when the host matches an alias there. Only
// still-unset parameters are taken; a missing default config is fine,
// an explicitly given one must parse.
func (o *options) resolveSSHConfig() error {
	path := o.sshConfig
	explicit := path != ""
	if !explicit {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		path = filepath.Join(home, ".ssh", "config")
		if _, err := os.Stat(path); err != nil {
			return nil
		}
	}

	hosts, err := sshconfig.ParseSSHConfig(path)
	if err != nil {
		if explicit {
			return fmt.Errorf("reading ssh config: %w", err)
		}
		return nil
	}

	for _, h := range hosts {
		if !matchesAlias(h.Host, o.host) {
			continue
		}
		if h.HostName != "" {
			o.host = h.HostName
		}
		if o.user == "" {
			o.user = h.User
		}
		if o.port == 0 && h.Port != 22 {
			o.port = h.Port
		}
		if o.identity == "" && o.password == "" && h.IdentityFile != "" {
			o.identity = expandHome(h.IdentityFile)
		}
		break
	}
	return nil
}

func matchesAlias(aliases []string, host string) bool {
	for _, a := range aliases {
		if a == host {
			return true
		}
	}
	return false
}

// expandHome resolves the leading tilde ssh configs routinely use.
func expandHome(p string) string {
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}

// deployment materializes the run parameters, reading the identity file
// when one is configured.
func (o *options) deployment() (*stevedore.Deployment, ssh.Config, error) {
	dep := &stevedore.Deployment{
		Host:         o.host,
		Port:         o.port,
		User:         o.user,
		Password:     o.password,
		IdentityFile: o.identity,
		TargetPath:   o.target,
		SourcePath:   o.sourcePath,
	}
	dep.ApplyDefaults()
	if err := dep.Validate(); err != nil {
		return nil, ssh.Config{}, err
	}

	conf := ssh.Config{
		Host:     dep.Host,
		Port:     dep.Port,
		User:     dep.User,
		Password: dep.Password,
	}
	if dep.IdentityFile != "" {
		key, err := os.ReadFile(dep.IdentityFile)
		if err != nil {
			return nil, ssh.Config{}, fmt.Errorf("reading identity file: %w", err)
		}
		conf.Key = key
	}
	return dep, conf, nil
}
