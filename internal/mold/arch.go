package mold

import (
	_ "embed"

	"github.com/google/uuid"

	"github.com/smelter-project/smelter/internal/config"
	"github.com/smelter-project/smelter/internal/media"
	"github.com/smelter-project/smelter/internal/vnc"
)

//go:embed payloads/arch-install.sh
var archInstallScript []byte

const archDefaultISO = "https://mirrors.edge.kernel.org/archlinux/iso/latest/archlinux-x86_64.iso"

// archLoginBannerHash is the hash of the 1024x400 region at offset (100, 0)
// of the live ISO's root autologin prompt. Recapture with the `s` breakpoint
// command under `smelter build --debug` when the upstream ISO rotates.
const archLoginBannerHash = "9c4f1f0e6b2a57d8e3c0a1b4f6d92e875a30c1de4b7f68a2910d5c3e8f47b6a1"

// archLinux installs from the Arch live ISO: the boot script waits for the
// autologin console, sets a temporary root password, opens up sshd, and the
// embedded payload performs the actual installation onto the target disk.
type archLinux struct {
	source       media.Source
	tempPassword string
	rootPassword string
}

func init() {
	Register("arch-linux", newArchLinux)
}

func newArchLinux(e config.Element) (Mold, error) {
	m := &archLinux{
		source: media.Source{
			URL:      archDefaultISO,
			Checksum: "none",
			Format:   media.FormatISO,
		},
		// The live-environment password only has to outlive this build.
		tempPassword: uuid.NewString(),
		rootPassword: e.RootPassword,
	}
	if e.MediaURL != "" {
		m.source.URL = e.MediaURL
	}
	if e.MediaChecksum != "" {
		m.source.Checksum = e.MediaChecksum
	}
	if m.rootPassword == "" {
		m.rootPassword = uuid.NewString()
	}
	return m, nil
}

func (m *archLinux) Name() string { return "arch-linux" }
func (m *archLinux) Source() media.Source { return m.source }
func (m *archLinux) SSHUser() string { return "root" }
func (m *archLinux) SSHPassword() string { return m.tempPassword }
func (m *archLinux) Payload() []byte { return archInstallScript }

func (m *archLinux) PayloadEnv() map[string]string {
	return map[string]string{
		"SMELTER_ROOT_PASSWORD": m.rootPassword,
	}
}

func (m *archLinux) ShutdownCommand() string { return "poweroff" }

func (m *archLinux) BootScript() vnc.Script {
	return vnc.Script{
		// The live ISO takes a while to reach the autologin prompt.
		vnc.Sleep(50),
		vnc.ScreenRectMatch(archLoginBannerHash, 100, 0, 1024, 400),
		// Temporary credential for the SSH phase.
		vnc.EnterLine("passwd"),
		vnc.EnterLine(m.tempPassword),
		vnc.EnterLine(m.tempPassword),
		// Open sshd for the payload upload.
		vnc.EnterLine("echo 'AcceptEnv *' >>/etc/ssh/sshd_config"),
		vnc.EnterLine("echo 'PermitRootLogin yes' >>/etc/ssh/sshd_config"),
		vnc.EnterLine("systemctl restart sshd"),
	}
}
