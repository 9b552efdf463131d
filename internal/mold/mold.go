// Package mold defines the per-OS templates a build can install. A mold
// supplies everything the orchestrator needs to take a blank disk to a
// provisioned image: the installation media, the console boot script, the
// credentials the script leaves behind, and an optional post-install
// payload.
package mold

import (
	"fmt"
	"sort"

	"github.com/smelter-project/smelter/internal/config"
	"github.com/smelter-project/smelter/internal/media"
	"github.com/smelter-project/smelter/internal/vnc"
)

// Mold is one installable OS flavor.
type Mold interface {
	// Name is the registry key, e.g. "arch-linux".
	Name() string

	// Source is the installation media to attach.
	Source() media.Source

	// BootScript drives the unattended install over the console. The
	// script must leave the guest reachable with the mold's SSH
	// credentials. May be empty for media that install autonomously.
	BootScript() vnc.Script

	// SSHUser and SSHPassword are the credentials the boot script
	// establishes.
	SSHUser() string
	SSHPassword() string

	// Payload is the post-install script run over SSH, or nil.
	Payload() []byte

	// PayloadEnv is the environment passed to the payload.
	PayloadEnv() map[string]string

	// ShutdownCommand powers the guest off once provisioning is done.
	ShutdownCommand() string
}

// Factory builds a mold from its element configuration.
type Factory func(e config.Element) (Mold, error)

var registry = map[string]Factory{}

// Register adds a mold factory under name. Called from mold init functions.
func Register(name string, f Factory) {
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("mold %q registered twice", name))
	}
	registry[name] = f
}

// New resolves a registered mold for the element.
func New(e config.Element) (Mold, error) {
	f, ok := registry[e.Mold]
	if !ok {
		return nil, fmt.Errorf("unknown mold %q (known: %v)", e.Mold, Names())
	}
	return f(e)
}

// Names lists the registered molds, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
