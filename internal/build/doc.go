// Package build drives a single image build from fetched install media to a
// powered-off disk image. Each build is a linear phase machine; a worker owns
// one ephemeral VM, scripts its installer over the display, finishes the
// install over SSH, and waits for the guest to power itself off.
package build
