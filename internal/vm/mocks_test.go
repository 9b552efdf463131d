package vm

import (
	"fmt"
	"sync"

	"github.com/digitalocean/go-libvirt"
)

// mockLibvirtClient is a scriptable in-memory libvirtClient.
type mockLibvirtClient struct {
	mu sync.Mutex

	createErr   error
	createdXML  string
	liveXML     string
	liveXMLErr  error
	state       int32
	stateErr    error
	destroyed   bool
	stateCalls  int
	onStateCall func(call int) (int32, error)
}

func (m *mockLibvirtClient) DomainCreateXML(xml string, flags libvirt.DomainCreateFlags) (libvirt.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return libvirt.Domain{}, m.createErr
	}
	m.createdXML = xml
	return libvirt.Domain{Name: "test-domain", ID: 7}, nil
}

func (m *mockLibvirtClient) DomainGetXMLDesc(dom libvirt.Domain, flags libvirt.DomainXMLFlags) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.liveXMLErr != nil {
		return "", m.liveXMLErr
	}
	if m.liveXML == "" {
		return "", fmt.Errorf("no live XML configured")
	}
	return m.liveXML, nil
}

func (m *mockLibvirtClient) DomainGetState(dom libvirt.Domain, flags uint32) (int32, int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateCalls++
	if m.onStateCall != nil {
		state, err := m.onStateCall(m.stateCalls)
		return state, 0, err
	}
	if m.stateErr != nil {
		return 0, 0, m.stateErr
	}
	return m.state, 0, nil
}

func (m *mockLibvirtClient) DomainDestroy(dom libvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destroyed = true
	return nil
}
