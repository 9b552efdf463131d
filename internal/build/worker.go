package build

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/smelter-project/smelter/internal/config"
	"github.com/smelter-project/smelter/internal/libvirt"
	"github.com/smelter-project/smelter/internal/media"
	"github.com/smelter-project/smelter/internal/mold"
	"github.com/smelter-project/smelter/internal/shell"
	"github.com/smelter-project/smelter/internal/vm"
	"github.com/smelter-project/smelter/internal/vnc"
)

// mediaCache resolves install media to verified local files.
type mediaCache interface {
	Get(ctx context.Context, src media.Source) (string, error)
}

// machine is the running build VM.
type machine interface {
	DisplayAddr() string
	SSHAddr() string
	ShutdownWait(ctx context.Context) error
}

// display drives the installer through the VM's display.
type display interface {
	Run(ctx context.Context, script vnc.Script) error
	Close() error
}

// shellSession is the SSH channel into the installed guest.
type shellSession interface {
	UploadAndExecute(payload []byte, env map[string]string) (int, error)
	Shutdown(command string) error
	Close() error
}

// InstallFailure reports a payload script that ran to completion but exited
// non-zero. The build VM is left running for inspection.
type InstallFailure struct {
	ExitCode int
}

func (e *InstallFailure) Error() string {
	return fmt.Sprintf("install payload exited with status %d", e.ExitCode)
}

// Options adjusts how a build's display session behaves.
type Options struct {
	Debug         bool
	Record        bool
	ScreenshotDir string
}

// Worker runs one image build end to end. Collaborators are held behind
// small interfaces and function fields so tests can substitute them without
// a hypervisor.
type Worker struct {
	name      string
	sizeGiB   uint
	outputDir string
	mold      mold.Mold

	cache          mediaCache
	createDisk     func(path string, sizeGiB uint) error
	launch         func(ctx context.Context, diskPath, mediaPath string) (machine, error)
	connectDisplay func(ctx context.Context, addr string) (display, error)
	dialShell      func(ctx context.Context, addr, user, password string) (shellSession, error)

	id      string
	phase   Phase
	history []Phase
}

// New wires a worker for one alloy element against a live libvirt connection
// and media cache.
func New(name string, cfg config.Config, el config.Element, client *libvirt.Client, cache *media.Cache, opts Options) (*Worker, error) {
	m, err := mold.New(el)
	if err != nil {
		return nil, fmt.Errorf("resolving mold for %s: %w", name, err)
	}

	w := newWorker()
	w.name = name
	w.sizeGiB = cfg.SizeGiB
	w.outputDir = cfg.OutputDir
	w.mold = m
	w.cache = cache
	w.createDisk = vm.CreateDisk
	w.launch = func(ctx context.Context, diskPath, mediaPath string) (machine, error) {
		return vm.Launch(ctx, client.Libvirt(), vm.Spec{
			Name:      "smelter-" + w.id,
			VCPUs:     cfg.VCPUs,
			MemoryMiB: cfg.MemoryMiB,
			DiskPath:  diskPath,
			MediaPath: mediaPath,
			SSHPort:   cfg.SSHPort,
		})
	}
	w.connectDisplay = func(ctx context.Context, addr string) (display, error) {
		return vnc.Connect(ctx, addr, vnc.Options{
			Debug:         opts.Debug,
			Record:        opts.Record,
			ScreenshotDir: opts.ScreenshotDir,
			Console:       vnc.NewStdinConsole(),
		})
	}
	w.dialShell = func(ctx context.Context, addr, user, password string) (shellSession, error) {
		return shell.WaitForShell(ctx, addr, user, password)
	}
	return w, nil
}

// newWorker prepares a bare worker in the Created phase with a fresh build ID.
func newWorker() *Worker {
	return &Worker{
		id:      uuid.NewString(),
		phase:   PhaseCreated,
		history: []Phase{PhaseCreated},
	}
}

// ID returns the build's unique identifier.
func (w *Worker) ID() string { return w.id }

// Phase returns the build's current phase.
func (w *Worker) Phase() Phase { return w.phase }

// History returns every phase the build has passed through, in order.
func (w *Worker) History() []Phase { return w.history }

// advance moves the build to the next phase on the success path.
func (w *Worker) advance(to Phase) error {
	if !CanTransition(w.phase, to) {
		return fmt.Errorf("invalid phase transition %s -> %s", w.phase, to)
	}
	log.Printf("Build %s (%s): %s -> %s", w.name, w.id, w.phase, to)
	w.phase = to
	w.history = append(w.history, to)
	return nil
}

// fail marks the build Failed and returns the causing error. Nothing is torn
// down here: a partially built VM is more useful alive when debugging a
// broken install script.
func (w *Worker) fail(err error) error {
	if CanTransition(w.phase, PhaseFailed) {
		log.Printf("Build %s (%s): %s -> %s: %v", w.name, w.id, w.phase, PhaseFailed, err)
		w.phase = PhaseFailed
		w.history = append(w.history, PhaseFailed)
	}
	return fmt.Errorf("build %s failed: %w", w.name, err)
}

// Run executes the build. It returns when the guest has powered itself off
// and the output disk holds the finished image, or on the first error.
func (w *Worker) Run(ctx context.Context) error {
	mediaPath, err := w.cache.Get(ctx, w.mold.Source())
	if err != nil {
		return w.fail(fmt.Errorf("resolving install media: %w", err))
	}
	diskPath := filepath.Join(w.outputDir, w.name+".qcow2")
	if err := w.createDisk(diskPath, w.sizeGiB); err != nil {
		return w.fail(fmt.Errorf("creating output disk: %w", err))
	}
	if err := w.advance(PhaseMediaReady); err != nil {
		return err
	}

	m, err := w.launch(ctx, diskPath, mediaPath)
	if err != nil {
		return w.fail(fmt.Errorf("launching build VM: %w", err))
	}
	if err := w.advance(PhaseLaunched); err != nil {
		return err
	}

	if script := w.mold.BootScript(); len(script) > 0 {
		disp, err := w.connectDisplay(ctx, m.DisplayAddr())
		if err != nil {
			return w.fail(fmt.Errorf("connecting to display: %w", err))
		}
		err = disp.Run(ctx, script)
		disp.Close()
		if err != nil {
			return w.fail(fmt.Errorf("scripted install: %w", err))
		}
	}
	if err := w.advance(PhaseScriptedInstall); err != nil {
		return err
	}

	sh, err := w.dialShell(ctx, m.SSHAddr(), w.mold.SSHUser(), w.mold.SSHPassword())
	if err != nil {
		return w.fail(fmt.Errorf("reaching guest shell: %w", err))
	}
	defer sh.Close()
	if err := w.advance(PhaseShellReachable); err != nil {
		return err
	}

	if payload := w.mold.Payload(); len(payload) > 0 {
		status, err := sh.UploadAndExecute(payload, w.mold.PayloadEnv())
		if err != nil {
			return w.fail(fmt.Errorf("running install payload: %w", err))
		}
		if status != 0 {
			return w.fail(&InstallFailure{ExitCode: status})
		}
	}
	if err := w.advance(PhasePostInstall); err != nil {
		return err
	}

	if err := sh.Shutdown(w.mold.ShutdownCommand()); err != nil {
		return w.fail(fmt.Errorf("shutting down guest: %w", err))
	}
	if err := w.advance(PhaseShuttingDown); err != nil {
		return err
	}

	if err := m.ShutdownWait(ctx); err != nil {
		return w.fail(fmt.Errorf("waiting for guest power-off: %w", err))
	}
	if err := w.advance(PhaseDone); err != nil {
		return err
	}
	log.Printf("Build %s (%s) complete: %s", w.name, w.id, diskPath)
	return nil
}
