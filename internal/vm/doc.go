// Package vm runs the ephemeral virtual machines that builds install into.
//
// A build VM is a transient libvirt domain: created running, never defined
// persistently, and gone once it powers off. Each domain gets the template's
// install media as a cdrom, the build's qcow2 output disk on virtio, a
// VNC display on loopback for the console automation, and a user-mode
// network with the guest's SSH port forwarded to a host port.
//
// The package is deliberately thin: the build orchestrator owns sequencing,
// this package owns domain XML assembly and process lifecycle.
package vm
