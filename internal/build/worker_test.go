package build

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/smelter-project/smelter/internal/media"
	"github.com/smelter-project/smelter/internal/vnc"
)

// testHarness bundles a worker with all of its mocked collaborators.
type testHarness struct {
	worker  *Worker
	rec     *recorder
	cache   *mockCache
	machine *mockMachine
	display *mockDisplay
	shell   *mockShell

	launchErr  error
	connectErr error
	dialErr    error
	diskErr    error

	createdDisk string
	createdSize uint
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	rec := &recorder{}
	h := &testHarness{
		rec:     rec,
		cache:   &mockCache{rec: rec, path: "/cache/media.iso"},
		machine: &mockMachine{rec: rec},
		display: &mockDisplay{rec: rec},
		shell:   &mockShell{rec: rec},
	}

	w := newWorker()
	w.name = "test-image"
	w.sizeGiB = 16
	w.outputDir = t.TempDir()
	w.mold = &mockMold{
		source:  media.Source{URL: "https://mirror.test/media.iso", Format: media.FormatISO},
		script:  vnc.Script{vnc.PressEnter()},
		payload: []byte("#!/bin/sh\ntrue\n"),
		env:     map[string]string{"SMELTER_ROOT_PASSWORD": "s3cret"},
	}
	w.cache = h.cache
	w.createDisk = func(path string, sizeGiB uint) error {
		rec.note("disk.Create")
		h.createdDisk = path
		h.createdSize = sizeGiB
		return h.diskErr
	}
	w.launch = func(_ context.Context, _, _ string) (machine, error) {
		rec.note("vm.Launch")
		if h.launchErr != nil {
			return nil, h.launchErr
		}
		return h.machine, nil
	}
	w.connectDisplay = func(_ context.Context, _ string) (display, error) {
		rec.note("display.Connect")
		if h.connectErr != nil {
			return nil, h.connectErr
		}
		return h.display, nil
	}
	w.dialShell = func(_ context.Context, _, _, _ string) (shellSession, error) {
		rec.note("shell.Dial")
		if h.dialErr != nil {
			return nil, h.dialErr
		}
		return h.shell, nil
	}

	h.worker = w
	return h
}

func TestWorker_Run(t *testing.T) {
	h := newTestHarness(t)

	if err := h.worker.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	wantPhases := []Phase{
		PhaseCreated, PhaseMediaReady, PhaseLaunched, PhaseScriptedInstall,
		PhaseShellReachable, PhasePostInstall, PhaseShuttingDown, PhaseDone,
	}
	if !reflect.DeepEqual(h.worker.History(), wantPhases) {
		t.Errorf("History() = %v, want %v", h.worker.History(), wantPhases)
	}

	wantCalls := []string{
		"cache.Get", "disk.Create", "vm.Launch",
		"display.Connect", "display.Run", "display.Close",
		"shell.Dial", "shell.UploadAndExecute", "shell.Shutdown",
		"machine.ShutdownWait", "shell.Close",
	}
	if !reflect.DeepEqual(h.rec.calls, wantCalls) {
		t.Errorf("call order = %v, want %v", h.rec.calls, wantCalls)
	}

	if h.cache.gotSource.URL != "https://mirror.test/media.iso" {
		t.Errorf("cache asked for %q", h.cache.gotSource.URL)
	}
	if h.createdSize != 16 {
		t.Errorf("disk created with %d GiB, want 16", h.createdSize)
	}
	if string(h.shell.gotPayload) != "#!/bin/sh\ntrue\n" {
		t.Error("payload not delivered to shell")
	}
	if h.shell.gotEnv["SMELTER_ROOT_PASSWORD"] != "s3cret" {
		t.Error("payload env not delivered to shell")
	}
	if h.shell.gotCommand != "poweroff" {
		t.Errorf("shutdown command = %q, want poweroff", h.shell.gotCommand)
	}
}

func TestWorker_RunNoBootScript(t *testing.T) {
	h := newTestHarness(t)
	h.worker.mold.(*mockMold).script = nil

	if err := h.worker.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	for _, call := range h.rec.calls {
		if call == "display.Connect" || call == "display.Run" {
			t.Fatalf("display used for a scriptless mold: %v", h.rec.calls)
		}
	}
	if h.worker.Phase() != PhaseDone {
		t.Errorf("Phase() = %s, want %s", h.worker.Phase(), PhaseDone)
	}
}

func TestWorker_RunNoPayload(t *testing.T) {
	h := newTestHarness(t)
	h.worker.mold.(*mockMold).payload = nil

	if err := h.worker.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	for _, call := range h.rec.calls {
		if call == "shell.UploadAndExecute" {
			t.Fatal("payload executed for a payloadless mold")
		}
	}
	if h.shell.gotCommand != "poweroff" {
		t.Error("guest never told to shut down")
	}
}

func TestWorker_RunFailures(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name     string
		arrange  func(h *testHarness)
		lastCall string
	}{
		{
			name:     "media fetch fails",
			arrange:  func(h *testHarness) { h.cache.err = boom },
			lastCall: "cache.Get",
		},
		{
			name:     "disk creation fails",
			arrange:  func(h *testHarness) { h.diskErr = boom },
			lastCall: "disk.Create",
		},
		{
			name:     "launch fails",
			arrange:  func(h *testHarness) { h.launchErr = boom },
			lastCall: "vm.Launch",
		},
		{
			name:     "display connect fails",
			arrange:  func(h *testHarness) { h.connectErr = boom },
			lastCall: "display.Connect",
		},
		{
			name:     "boot script fails",
			arrange:  func(h *testHarness) { h.display.runErr = boom },
			lastCall: "display.Close",
		},
		{
			name:     "shell dial fails",
			arrange:  func(h *testHarness) { h.dialErr = boom },
			lastCall: "shell.Dial",
		},
		{
			name:     "payload transport fails",
			arrange:  func(h *testHarness) { h.shell.execErr = boom },
			lastCall: "shell.Close",
		},
		{
			name:     "shutdown command fails",
			arrange:  func(h *testHarness) { h.shell.shutdownErr = boom },
			lastCall: "shell.Close",
		},
		{
			name:     "guest never powers off",
			arrange:  func(h *testHarness) { h.machine.shutdownErr = boom },
			lastCall: "shell.Close",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHarness(t)
			tt.arrange(h)

			err := h.worker.Run(context.Background())
			if err == nil {
				t.Fatal("Run() succeeded, want error")
			}
			if !errors.Is(err, boom) {
				t.Errorf("Run() error = %v, want wrapped boom", err)
			}
			if h.worker.Phase() != PhaseFailed {
				t.Errorf("Phase() = %s, want %s", h.worker.Phase(), PhaseFailed)
			}
			if last := h.rec.calls[len(h.rec.calls)-1]; last != tt.lastCall {
				t.Errorf("last call = %s, want %s (all: %v)", last, tt.lastCall, h.rec.calls)
			}
		})
	}
}

func TestWorker_RunInstallFailure(t *testing.T) {
	h := newTestHarness(t)
	h.shell.execStatus = 7

	err := h.worker.Run(context.Background())
	if err == nil {
		t.Fatal("Run() succeeded, want install failure")
	}

	var installErr *InstallFailure
	if !errors.As(err, &installErr) {
		t.Fatalf("Run() error = %v, want *InstallFailure", err)
	}
	if installErr.ExitCode != 7 {
		t.Errorf("ExitCode = %d, want 7", installErr.ExitCode)
	}
	if h.worker.Phase() != PhaseFailed {
		t.Errorf("Phase() = %s, want %s", h.worker.Phase(), PhaseFailed)
	}

	// A failed payload must not trigger a shutdown; the VM stays up for
	// inspection.
	for _, call := range h.rec.calls {
		if call == "shell.Shutdown" || call == "machine.ShutdownWait" {
			t.Fatalf("failed build still shut the guest down: %v", h.rec.calls)
		}
	}
}

func TestNewWorker(t *testing.T) {
	a := newWorker()
	b := newWorker()

	if a.Phase() != PhaseCreated {
		t.Errorf("Phase() = %s, want %s", a.Phase(), PhaseCreated)
	}
	if a.ID() == "" || a.ID() == b.ID() {
		t.Errorf("build IDs not unique: %q vs %q", a.ID(), b.ID())
	}
}
