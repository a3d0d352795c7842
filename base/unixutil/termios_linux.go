//go:build linux

package unixutil

import (
	"os"

	"golang.org/x/sys/unix"
)

// SetHangupOnClose sets HUPCL on the tty at path so that the modem control
// lines are lowered when the last process closes it. Devices such as the
// time interval counter use this to reset into their configuration menu.
func SetHangupOnClose(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	fd := int(f.Fd())
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}
	if t.Cflag&unix.HUPCL != 0 {
		return nil
	}
	t.Cflag |= unix.HUPCL
	return unix.IoctlSetTermios(fd, unix.TCSETS, t)
}
