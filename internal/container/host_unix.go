//go:build unix

package container

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// HostOsInfo describes the machine the agent runs on.
func HostOsInfo() (OsInfo, error) {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return OsInfo{}, fmt.Errorf("uname: %w", err)
	}
	return OsInfo{
		Name:    capitalize(runtime.GOOS),
		Version: unix.ByteSliceToString(u.Release[:]),
		Arch:    runtime.GOARCH,
	}, nil
}
