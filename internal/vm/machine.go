package vm

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/digitalocean/go-libvirt"
	"libvirt.org/go/libvirtxml"
)

// Spec describes one ephemeral build VM.
type Spec struct {
	Name      string // libvirt domain name, unique per build
	VCPUs     uint
	MemoryMiB uint
	DiskPath  string // qcow2 output disk, already created
	MediaPath string // installation ISO attached as cdrom
	SSHPort   uint   // host port forwarded to guest port 22
}

// Machine is a running transient build domain.
type Machine struct {
	lv      libvirtClient
	dom     libvirt.Domain
	vncPort int
	sshPort uint
}

// Launch creates and starts a transient domain for the spec and discovers
// its VNC display port. The domain destroys itself on guest power-off.
func Launch(ctx context.Context, lv libvirtClient, spec Spec) (*Machine, error) {
	xml, err := domainXML(spec)
	if err != nil {
		return nil, err
	}

	log.Printf("Launching build VM %s", spec.Name)
	dom, err := lv.DomainCreateXML(xml, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to launch build VM: %w", err)
	}

	m := &Machine{lv: lv, dom: dom, sshPort: spec.SSHPort}

	// Autoport resolves when the domain starts; read it back from the live
	// XML.
	live, err := lv.DomainGetXMLDesc(dom, 0)
	if err != nil {
		m.Destroy()
		return nil, fmt.Errorf("failed to read live domain XML: %w", err)
	}
	port, err := vncPortFromXML(live)
	if err != nil {
		m.Destroy()
		return nil, err
	}
	m.vncPort = port

	log.Printf("Build VM %s running (display on 127.0.0.1:%d)", spec.Name, port)
	return m, nil
}

// DisplayAddr returns the host:port of the VM's VNC display.
func (m *Machine) DisplayAddr() string {
	return fmt.Sprintf("127.0.0.1:%d", m.vncPort)
}

// SSHAddr returns the host:port forwarded to the guest's SSH daemon.
func (m *Machine) SSHAddr() string {
	return fmt.Sprintf("127.0.0.1:%d", m.sshPort)
}

// ShutdownWait blocks until the guest has powered off. Transient domains
// disappear when they stop, so a lookup failure means the VM exited.
func (m *Machine) ShutdownWait(ctx context.Context) error {
	log.Printf("Waiting for build VM to power off")

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("gave up waiting for VM exit: %w", ctx.Err())
		case <-ticker.C:
			state, _, err := m.lv.DomainGetState(m.dom, 0)
			if err != nil || state == domainStateShutoff {
				log.Printf("Build VM exited")
				return nil
			}
		}
	}
}

// Destroy force-stops the domain. Used on failure paths; a domain that
// already exited is not an error.
func (m *Machine) Destroy() error {
	if err := m.lv.DomainDestroy(m.dom); err != nil {
		log.Printf("Warning: failed to destroy build VM: %v", err)
		return err
	}
	return nil
}

// domainXML assembles the transient domain definition for a build VM.
func domainXML(spec Spec) (string, error) {
	domain := &libvirtxml.Domain{
		Type: "kvm",
		Name: spec.Name,
		Memory: &libvirtxml.DomainMemory{
			Value: spec.MemoryMiB,
			Unit:  "MiB",
		},
		VCPU: &libvirtxml.DomainVCPU{
			Placement: "static",
			Value:     spec.VCPUs,
		},
		OS: &libvirtxml.DomainOS{
			Type: &libvirtxml.DomainOSType{
				Arch: "x86_64",
				Type: "hvm",
			},
			BootDevices: []libvirtxml.DomainBootDevice{
				{Dev: "cdrom"},
				{Dev: "hd"},
			},
		},
		Features: &libvirtxml.DomainFeatureList{
			ACPI: &libvirtxml.DomainFeature{},
			APIC: &libvirtxml.DomainFeatureAPIC{},
		},
		CPU: &libvirtxml.DomainCPU{
			Mode: "host-model",
			Model: &libvirtxml.DomainCPUModel{
				Fallback: "allow",
			},
		},
		// Build VMs are one-shot: power-off tears the domain down, and a
		// crash must not restart into a half-installed guest.
		OnPoweroff: "destroy",
		OnReboot:   "restart",
		OnCrash:    "destroy",
		Devices: &libvirtxml.DomainDeviceList{
			Disks: []libvirtxml.DomainDisk{
				{
					Device: "disk",
					Driver: &libvirtxml.DomainDiskDriver{
						Name:    "qemu",
						Type:    "qcow2",
						Cache:   "writeback",
						Discard: "ignore",
					},
					Source: &libvirtxml.DomainDiskSource{
						File: &libvirtxml.DomainDiskSourceFile{File: spec.DiskPath},
					},
					Target: &libvirtxml.DomainDiskTarget{Dev: "vda", Bus: "virtio"},
				},
				{
					Device: "cdrom",
					Driver: &libvirtxml.DomainDiskDriver{
						Name: "qemu",
						Type: "raw",
					},
					Source: &libvirtxml.DomainDiskSource{
						File: &libvirtxml.DomainDiskSourceFile{File: spec.MediaPath},
					},
					Target:   &libvirtxml.DomainDiskTarget{Dev: "hdc", Bus: "ide"},
					ReadOnly: &libvirtxml.DomainDiskReadOnly{},
				},
			},
			Graphics: []libvirtxml.DomainGraphic{
				{
					VNC: &libvirtxml.DomainGraphicVNC{
						AutoPort: "yes",
						Listen:   "127.0.0.1",
					},
				},
			},
			MemBalloon: &libvirtxml.DomainMemBalloon{
				Model: "virtio",
			},
		},
		// User-mode networking with the guest SSH port forwarded to the
		// host, passed straight to qemu the way a manual build would.
		QEMUCommandline: &libvirtxml.DomainQEMUCommandline{
			Args: []libvirtxml.DomainQEMUCommandlineArg{
				{Value: "-netdev"},
				{Value: fmt.Sprintf("user,id=smelter0,hostfwd=tcp:127.0.0.1:%d-:22", spec.SSHPort)},
				{Value: "-device"},
				{Value: "virtio-net-pci,netdev=smelter0"},
			},
		},
	}

	xml, err := domain.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to generate domain XML: %w", err)
	}
	return xml, nil
}

// vncPortFromXML extracts the resolved VNC display port from live domain
// XML.
func vncPortFromXML(xml string) (int, error) {
	var domain libvirtxml.Domain
	if err := domain.Unmarshal(xml); err != nil {
		return 0, fmt.Errorf("failed to parse live domain XML: %w", err)
	}
	if domain.Devices == nil {
		return 0, fmt.Errorf("live domain XML has no devices")
	}
	for _, g := range domain.Devices.Graphics {
		if g.VNC != nil && g.VNC.Port > 0 {
			return g.VNC.Port, nil
		}
	}
	return 0, fmt.Errorf("no resolved VNC port in live domain XML")
}
