package build

import (
	"context"

	"github.com/smelter-project/smelter/internal/media"
	"github.com/smelter-project/smelter/internal/vnc"
)

// recorder collects collaborator calls in order so tests can assert the build
// sequence.
type recorder struct {
	calls []string
}

func (r *recorder) note(call string) {
	r.calls = append(r.calls, call)
}

type mockCache struct {
	rec       *recorder
	path      string
	err       error
	gotSource media.Source
}

func (c *mockCache) Get(_ context.Context, src media.Source) (string, error) {
	c.rec.note("cache.Get")
	c.gotSource = src
	if c.err != nil {
		return "", c.err
	}
	return c.path, nil
}

type mockMachine struct {
	rec         *recorder
	shutdownErr error
}

func (m *mockMachine) DisplayAddr() string { return "127.0.0.1:5901" }
func (m *mockMachine) SSHAddr() string { return "127.0.0.1:10022" }

func (m *mockMachine) ShutdownWait(context.Context) error {
	m.rec.note("machine.ShutdownWait")
	return m.shutdownErr
}

type mockDisplay struct {
	rec       *recorder
	runErr    error
	gotScript vnc.Script
}

func (d *mockDisplay) Run(_ context.Context, script vnc.Script) error {
	d.rec.note("display.Run")
	d.gotScript = script
	return d.runErr
}

func (d *mockDisplay) Close() error {
	d.rec.note("display.Close")
	return nil
}

type mockShell struct {
	rec         *recorder
	execStatus  int
	execErr     error
	shutdownErr error
	gotPayload  []byte
	gotEnv      map[string]string
	gotCommand  string
}

func (s *mockShell) UploadAndExecute(payload []byte, env map[string]string) (int, error) {
	s.rec.note("shell.UploadAndExecute")
	s.gotPayload = payload
	s.gotEnv = env
	return s.execStatus, s.execErr
}

func (s *mockShell) Shutdown(command string) error {
	s.rec.note("shell.Shutdown")
	s.gotCommand = command
	return s.shutdownErr
}

func (s *mockShell) Close() error {
	s.rec.note("shell.Close")
	return nil
}

// mockMold is a minimal in-memory mold.
type mockMold struct {
	source  media.Source
	script  vnc.Script
	payload []byte
	env     map[string]string
}

func (m *mockMold) Name() string { return "mock" }
func (m *mockMold) Source() media.Source { return m.source }
func (m *mockMold) BootScript() vnc.Script { return m.script }
func (m *mockMold) SSHUser() string { return "root" }
func (m *mockMold) SSHPassword() string { return "hunter2" }
func (m *mockMold) Payload() []byte { return m.payload }
func (m *mockMold) PayloadEnv() map[string]string { return m.env }
func (m *mockMold) ShutdownCommand() string { return "poweroff" }
