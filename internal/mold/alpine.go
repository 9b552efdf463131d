package mold

import (
	_ "embed"

	"github.com/google/uuid"

	"github.com/smelter-project/smelter/internal/config"
	"github.com/smelter-project/smelter/internal/media"
	"github.com/smelter-project/smelter/internal/vnc"
)

//go:embed payloads/alpine-install.sh
var alpineInstallScript []byte

const alpineDefaultISO = "https://dl-cdn.alpinelinux.org/alpine/v3.20/releases/x86_64/alpine-virt-3.20.3-x86_64.iso"
const alpineDefaultChecksum = "none"

// alpineLinux installs from the Alpine virt ISO. The live system autologs
// in as root on the console, so the whole SSH bring-up happens through
// typed commands; the payload then runs setup-disk onto the target disk.
type alpineLinux struct {
	source       media.Source
	tempPassword string
	rootPassword string
}

func init() {
	Register("alpine-linux", newAlpineLinux)
}

func newAlpineLinux(e config.Element) (Mold, error) {
	m := &alpineLinux{
		source: media.Source{
			URL:      alpineDefaultISO,
			Checksum: alpineDefaultChecksum,
			Format:   media.FormatISO,
		},
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

func (m *alpineLinux) Name() string { return "alpine-linux" }
func (m *alpineLinux) Source() media.Source { return m.source }
func (m *alpineLinux) SSHUser() string { return "root" }
func (m *alpineLinux) SSHPassword() string { return m.tempPassword }
func (m *alpineLinux) Payload() []byte { return alpineInstallScript }

func (m *alpineLinux) PayloadEnv() map[string]string {
	return map[string]string{
		"SMELTER_ROOT_PASSWORD": m.rootPassword,
	}
}

func (m *alpineLinux) ShutdownCommand() string { return "poweroff" }

func (m *alpineLinux) BootScript() vnc.Script {
	return vnc.Script{
		vnc.Sleep(30),
		// The virt ISO drops straight into a root shell.
		vnc.EnterLine("root"),
		vnc.EnterLine("setup-interfaces -a"),
		vnc.EnterLine("rc-service networking start"),
		vnc.EnterLine("echo 'root:" + m.tempPassword + "' | chpasswd"),
		vnc.EnterLine("setup-sshd -c openssh"),
		vnc.EnterLine("echo 'AcceptEnv *' >>/etc/ssh/sshd_config"),
		vnc.EnterLine("echo 'PermitRootLogin yes' >>/etc/ssh/sshd_config"),
		vnc.EnterLine("rc-service sshd restart"),
	}
}
