//go:build linux

package tapio

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Linux tun/tap ioctl constants (linux/if_tun.h). The teacher's
// pkg/ethernet/interface.go opens an AF_PACKET raw socket bound to an
// existing interface; a tap device instead allocates its own virtual
// interface via /dev/net/tun plus TUNSETIFF, so the open sequence differs
// even though both end up handing back a pollable fd for raw frame I/O.
const (
	tunDevicePath = "/dev/net/tun"
	iffTap        = 0x0002
	iffNoPI       = 0x1000
	tunSetIff     = 0x400454ca
)

type ifReq struct {
	Name  [16]byte
	Flags uint16
	pad   [22]byte
}

// LinuxTap is a TapDevice backed by a Linux /dev/net/tun character device
// opened in TAP (L2) mode.
type LinuxTap struct {
	file *os.File
	name string
}

// OpenLinuxTap allocates or attaches to the named tap interface. If name is
// empty the kernel assigns one (typically "tap0", "tap1", ...); the
// assigned name is available via Name() afterward.
func OpenLinuxTap(name string) (*LinuxTap, error) {
	f, err := os.OpenFile(tunDevicePath, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w (you may need root/sudo)", tunDevicePath, err)
	}

	var req ifReq
	copy(req.Name[:], name)
	req.Flags = iffTap | iffNoPI

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), uintptr(tunSetIff), uintptr(unsafe.Pointer(&req)))
	if errno != 0 {
		f.Close()
		return nil, fmt.Errorf("TUNSETIFF: %w", errno)
	}

	assigned := string(req.Name[:clen(req.Name[:])])
	return &LinuxTap{file: f, name: assigned}, nil
}

func clen(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return len(b)
}

// Name returns the kernel-assigned or requested interface name.
func (t *LinuxTap) Name() string { return t.name }

// Fd returns the raw file descriptor, for unix.Poll readiness waits.
func (t *LinuxTap) Fd() int { return int(t.file.Fd()) }

// Read implements TapDevice.
func (t *LinuxTap) Read(buf []byte) (int, error) { return t.file.Read(buf) }

// Write implements TapDevice.
func (t *LinuxTap) Write(buf []byte) (int, error) { return t.file.Write(buf) }

// Close implements TapDevice.
func (t *LinuxTap) Close() error { return t.file.Close() }
