package ssh

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

const (
	testUser     = "deploy"
	testPassword = "hunter2"
)

// execRecord is one command the mock server received, along with
// everything the client streamed into its stdin.
type execRecord struct {
	command string
	stdin   []byte
}

// mockResponse scripts the server's reaction to one command. The zero
// value answers with a silent zero exit.
type mockResponse struct {
	stdout string
	stderr string
	exit   byte
	block  chan struct{} // when set, hold the command open until closed
}

// mockServer is an in-process SSH server accepting the test user by
// password or by the generated key pair, recording every exec request.
type mockServer struct {
	listener net.Listener

	mu        sync.Mutex
	execs     []execRecord
	responses map[string]mockResponse
}

// startMockServer spins up a server on a loopback port and returns it
// together with the PEM private key it authorizes.
func startMockServer(t *testing.T) (*mockServer, []byte) {
	t.Helper()

	clientKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	clientPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(clientKey),
	})
	clientPub, err := ssh.NewPublicKey(&clientKey.PublicKey)
	require.NoError(t, err)
	authorized := string(clientPub.Marshal())

	config := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == testUser && string(pass) == testPassword {
				return nil, nil
			}
			return nil, fmt.Errorf("denied for %q", c.User())
		},
		PublicKeyCallback: func(c ssh.ConnMetadata, pub ssh.PublicKey) (*ssh.Permissions, error) {
			if string(pub.Marshal()) == authorized {
				return nil, nil
			}
			return nil, fmt.Errorf("unknown public key for %q", c.User())
		},
	}

	hostKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(hostKey)
	require.NoError(t, err)
	config.AddHostKey(signer)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &mockServer{listener: listener, responses: map[string]mockResponse{}}
	go srv.accept(config)
	t.Cleanup(func() { listener.Close() })

	return srv, clientPEM
}

func (s *mockServer) addr() (host string, port int) {
	tcp := s.listener.Addr().(*net.TCPAddr)
	return tcp.IP.String(), tcp.Port
}

// respond scripts the reaction to an exact command line.
func (s *mockServer) respond(command string, resp mockResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[command] = resp
}

// commands returns the received command lines in order.
func (s *mockServer) commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmds := make([]string, len(s.execs))
	for i, e := range s.execs {
		cmds[i] = e.command
	}
	return cmds
}

func (s *mockServer) lastExec() execRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.execs) == 0 {
		return execRecord{}
	}
	return s.execs[len(s.execs)-1]
}

func (s *mockServer) accept(config *ssh.ServerConfig) {
	for {
		nConn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handle(nConn, config)
	}
}

func (s *mockServer) handle(nConn net.Conn, config *ssh.ServerConfig) {
	_, chans, reqs, err := ssh.NewServerConn(nConn, config)
	if err != nil {
		return
	}
	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			return
		}
		go s.session(channel, requests)
	}
}

func (s *mockServer) session(channel ssh.Channel, in <-chan *ssh.Request) {
	defer channel.Close()

	for req := range in {
		if req.Type != "exec" {
			req.Reply(false, nil)
			continue
		}
		var payload struct{ Command string }
		ssh.Unmarshal(req.Payload, &payload)
		req.Reply(true, nil)

		// Drain stdin first; the client closes it once everything is
		// streamed.
		stdin, _ := io.ReadAll(channel)

		s.mu.Lock()
		s.execs = append(s.execs, execRecord{command: payload.Command, stdin: stdin})
		resp := s.responses[payload.Command]
		s.mu.Unlock()

		if resp.block != nil {
			<-resp.block
		}
		if resp.stdout != "" {
			channel.Write([]byte(resp.stdout))
		}
		if resp.stderr != "" {
			channel.Stderr().Write([]byte(resp.stderr))
		}
		channel.SendRequest("exit-status", false, []byte{0, 0, 0, resp.exit})
		return
	}
}
