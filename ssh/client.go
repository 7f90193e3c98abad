// Package ssh implements the stevedore transport over a single SSH
// connection, opening a fresh session per remote command.
package ssh

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"

	"github.com/harborlabs/stevedore"
)

// DefaultDialTimeout bounds the TCP dial and SSH handshake when the
// config does not say otherwise.
const DefaultDialTimeout = 10 * time.Second

// Config carries what it takes to reach one host. Exactly one of
// Password and Key is expected; Deployment validation upstream
// guarantees that.
type Config struct {
	Host        string
	Port        int
	User        string
	Password    string
	Key         []byte // PEM-encoded private key
	DialTimeout time.Duration
}

// Client is a wrapper over the SSH connection/sessions.
type Client struct {
	conf Config
	conn *ssh.Client
}

var _ stevedore.Client = (*Client)(nil)

// ErrConnect reports a failure to establish the SSH session.
type ErrConnect struct {
	User string
	Host string
	Err  error
}

func (e *ErrConnect) Error() string {
	return fmt.Sprintf("connect %s@%s: %v", e.User, e.Host, e.Err)
}

func (e *ErrConnect) Unwrap() error { return e.Err }

// NewClient returns an unconnected client for the given host.
func NewClient(conf Config) *Client {
	if conf.Port == 0 {
		conf.Port = 22
	}
	if conf.DialTimeout == 0 {
		conf.DialTimeout = DefaultDialTimeout
	}
	return &Client{conf: conf}
}

// Connect dials the host and authenticates. Host keys are not checked:
// deployments routinely target freshly provisioned machines whose keys
// nobody has recorded yet.
func (c *Client) Connect(ctx context.Context) error {
	if c.conn != nil {
		return errors.New("already connected")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	auth, err := c.authMethod()
	if err != nil {
		return &ErrConnect{User: c.conf.User, Host: c.conf.Host, Err: err}
	}

	config := &ssh.ClientConfig{
		User:            c.conf.User,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.conf.DialTimeout,
	}

	addr := net.JoinHostPort(c.conf.Host, strconv.Itoa(c.conf.Port))
	conn, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return &ErrConnect{User: c.conf.User, Host: c.conf.Host, Err: err}
	}
	c.conn = conn
	return nil
}

func (c *Client) authMethod() (ssh.AuthMethod, error) {
	if len(c.conf.Key) > 0 {
		signer, err := ssh.ParsePrivateKey(c.conf.Key)
		if err != nil {
			return nil, errors.Wrap(err, "parsing private key")
		}
		return ssh.PublicKeys(signer), nil
	}
	if c.conf.Password != "" {
		return ssh.Password(c.conf.Password), nil
	}
	return nil, errors.New("no credential supplied")
}

// Exec runs one command in a fresh session. A command finishing with a
// non-zero exit code is a result, not an error; errors mean transport
// trouble or context expiry. On expiry the session is torn down but the
// remote process is not forcibly killed and may keep running on the
// host.
func (c *Client) Exec(ctx context.Context, command string, opts stevedore.ExecOptions) (*stevedore.ExecResult, error) {
	if c.conn == nil {
		return nil, errors.New("not connected")
	}

	sess, err := c.conn.NewSession()
	if err != nil {
		return nil, errors.Wrap(err, "opening session")
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- sess.Run(assemble(command, opts)) }()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-done:
		res := &stevedore.ExecResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
		if err == nil {
			return res, nil
		}
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitStatus()
			return res, nil
		}
		return nil, errors.Wrap(err, "running command")
	}
}

// assemble glues the env export prefix and the working directory onto
// the command. cd is explicit on every call; sessions promise no state
// carry-over.
func assemble(command string, opts stevedore.ExecOptions) string {
	if opts.Dir != "" {
		command = fmt.Sprintf("cd \"%s\" && %s", opts.Dir, command)
	}
	return opts.Env + command
}

// Put copies a local file to remotePath by streaming it into cat on the
// far side.
func (c *Client) Put(ctx context.Context, localPath, remotePath string) error {
	if c.conn == nil {
		return errors.New("not connected")
	}

	f, err := os.Open(localPath)
	if err != nil {
		return errors.Wrap(err, "opening local file")
	}
	defer f.Close()

	sess, err := c.conn.NewSession()
	if err != nil {
		return errors.Wrap(err, "opening session")
	}
	defer sess.Close()

	sess.Stdin = f
	var stderr bytes.Buffer
	sess.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- sess.Run(fmt.Sprintf("cat > \"%s\"", remotePath)) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err == nil {
			return nil
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return errors.Wrapf(err, "writing %s: %s", remotePath, msg)
		}
		return errors.Wrapf(err, "writing %s", remotePath)
	}
}

// Close tears down the connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return errors.New("connection already closed")
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// ParseAddr splits "[ssh://][user@]host[:port]" into its parts. User
// and port come back zero-valued when absent so callers can layer their
// own defaults.
func ParseAddr(addr string) (user, host string, port int, err error) {
	host = strings.TrimPrefix(addr, "ssh://")
	if at := strings.Index(host, "@"); at != -1 {
		user = host[:at]
		host = host[at+1:]
	}
	if strings.Contains(host, "/") {
		return "", "", 0, errors.Errorf("unexpected slash in host %q", addr)
	}
	if i := strings.LastIndex(host, ":"); i != -1 {
		port, err = strconv.Atoi(host[i+1:])
		if err != nil || port <= 0 {
			return "", "", 0, errors.Errorf("invalid port in host %q", addr)
		}
		host = host[:i]
	}
	if host == "" {
		return "", "", 0, errors.Errorf("empty host in %q", addr)
	}
	return user, host, port, nil
}
