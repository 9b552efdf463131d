// Package shell provides the remote-shell channel into a freshly installed
// guest: waiting for sshd to come up, pushing a post-install payload, and
// issuing the final shutdown command.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"golang.org/x/crypto/ssh"
)

// payloadPath is where uploaded payload scripts land on the guest.
const payloadPath = "/tmp/smelter-payload.sh"

// redialInterval is the pause between connection attempts while waiting for
// the guest's sshd.
const redialInterval = 5 * time.Second

// Session is an authenticated SSH connection to the guest.
type Session struct {
	client *ssh.Client
}

// WaitForShell dials addr until the guest accepts the credentials or the
// context is cancelled. Guests take an unpredictable amount of time to bring
// sshd up after the scripted install, so refusals and auth failures simply
// schedule another attempt.
func WaitForShell(ctx context.Context, addr, user, password string) (*Session, error) {
	config := &ssh.ClientConfig{
		User: user,
		Auth: []ssh.AuthMethod{ssh.Password(password)},
		// The guest was installed seconds ago; its host key is ephemeral.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         redialInterval,
	}

	log.Printf("Waiting for SSH at %s", addr)
	for {
		client, err := ssh.Dial("tcp", addr, config)
		if err == nil {
			log.Printf("SSH connection established")
			return &Session{client: client}, nil
		}
		log.Printf("SSH not ready yet: %v", err)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("gave up waiting for SSH at %s: %w", addr, ctx.Err())
		case <-time.After(redialInterval):
		}
	}
}

// Close tears down the SSH connection.
func (s *Session) Close() error {
	return s.client.Close()
}

// UploadAndExecute copies the payload script to the guest and runs it with
// the given environment, returning the remote exit status. The environment
// is passed via SSH env requests; the guest's sshd must accept them (the
// boot scripts configure AcceptEnv before this runs).
func (s *Session) UploadAndExecute(payload []byte, env map[string]string) (int, error) {
	if err := s.upload(payload); err != nil {
		return -1, err
	}

	sess, err := s.client.NewSession()
	if err != nil {
		return -1, fmt.Errorf("failed to open exec session: %w", err)
	}
	defer sess.Close()

	for name, value := range env {
		if err := sess.Setenv(name, value); err != nil {
			return -1, fmt.Errorf("failed to set %s on remote session: %w", name, err)
		}
	}

	var output bytes.Buffer
	sess.Stdout = &output
	sess.Stderr = &output

	log.Printf("Executing payload script")
	err = sess.Run("sh " + payloadPath)
	if err == nil {
		return 0, nil
	}

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		log.Printf("Payload exited %d, output:\n%s", exitErr.ExitStatus(), output.String())
		return exitErr.ExitStatus(), nil
	}
	return -1, fmt.Errorf("payload execution failed: %w", err)
}

// upload writes the payload bytes to payloadPath through a cat pipeline.
func (s *Session) upload(payload []byte) error {
	sess, err := s.client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to open upload session: %w", err)
	}
	defer sess.Close()

	sess.Stdin = bytes.NewReader(payload)
	if err := sess.Run("cat > " + payloadPath); err != nil {
		return fmt.Errorf("failed to upload payload: %w", err)
	}
	return nil
}

// Shutdown issues the guest power-off command. The guest usually kills the
// connection before the command's exit status makes it back, so a dropped
// connection counts as success.
func (s *Session) Shutdown(command string) error {
	sess, err := s.client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to open shutdown session: %w", err)
	}
	defer sess.Close()

	log.Printf("Sending shutdown command: %s", command)
	err = sess.Run(command)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	var missingErr *ssh.ExitMissingError
	if errors.As(err, &missingErr) {
		return nil
	}
	return fmt.Errorf("shutdown command failed: %w", err)
}
