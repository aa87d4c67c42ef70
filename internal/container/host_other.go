//go:build !unix && !windows

package container

import "runtime"

func HostOsInfo() (OsInfo, error) {
	return OsInfo{Name: capitalize(runtime.GOOS), Arch: runtime.GOARCH}, nil
}
