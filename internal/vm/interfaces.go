package vm

import (
	"github.com/digitalocean/go-libvirt"
)

// libvirtClient defines the libvirt operations needed to run build VMs.
//
// In production, this is satisfied by *libvirt.Libvirt directly.
// In tests, this is satisfied by mock implementations.
type libvirtClient interface {
	// DomainCreateXML creates and starts a transient domain
	DomainCreateXML(xml string, flags libvirt.DomainCreateFlags) (libvirt.Domain, error)

	// DomainGetXMLDesc fetches the live domain XML
	DomainGetXMLDesc(dom libvirt.Domain, flags libvirt.DomainXMLFlags) (string, error)

	// DomainGetState gets the state of a domain
	DomainGetState(dom libvirt.Domain, flags uint32) (state int32, reason int32, err error)

	// DomainDestroy force-stops a domain
	DomainDestroy(dom libvirt.Domain) error
}

// Domain state constants from libvirt (virDomainState).
const (
	domainStateRunning = 1
	domainStateShutoff = 5
)
