package mold

import (
	"github.com/smelter-project/smelter/internal/config"
	"github.com/smelter-project/smelter/internal/media"
	"github.com/smelter-project/smelter/internal/vnc"
)

const ubuntuDefaultISO = "https://releases.ubuntu.com/jammy/ubuntu-22.04.5-live-server-amd64.iso"

// ubuntuServer installs from an autoinstall-seeded live-server image. The
// seeded installer runs unattended on its own, so the boot script has no
// console work to do; the build simply waits for the installed system's
// sshd.
type ubuntuServer struct {
	source       media.Source
	rootPassword string
}

func init() {
	Register("ubuntu-server", newUbuntuServer)
}

func newUbuntuServer(e config.Element) (Mold, error) {
	m := &ubuntuServer{
		source: media.Source{
			URL:      ubuntuDefaultISO,
			Checksum: "none",
			Format:   media.FormatISO,
		},
		rootPassword: e.RootPassword,
	}
	if e.MediaURL != "" {
		m.source.URL = e.MediaURL
	}
	if e.MediaChecksum != "" {
		m.source.Checksum = e.MediaChecksum
	}
	if m.rootPassword == "" {
		m.rootPassword = "root"
	}
	return m, nil
}

func (m *ubuntuServer) Name() string { return "ubuntu-server" }
func (m *ubuntuServer) Source() media.Source { return m.source }
func (m *ubuntuServer) SSHUser() string { return "root" }
func (m *ubuntuServer) SSHPassword() string { return m.rootPassword }
func (m *ubuntuServer) Payload() []byte { return nil }
func (m *ubuntuServer) PayloadEnv() map[string]string { return nil }
func (m *ubuntuServer) ShutdownCommand() string { return "poweroff" }

func (m *ubuntuServer) BootScript() vnc.Script {
	return nil
}
