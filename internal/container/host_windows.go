//go:build windows

package container

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/windows"
)

// HostOsInfo describes the machine the agent runs on. The version carries the build
// number as its last component so it can be matched against image builds.
func HostOsInfo() (OsInfo, error) {
	v := windows.RtlGetVersion()
	return OsInfo{
		Name:    "Windows",
		Version: fmt.Sprintf("%d.%d.%d", v.MajorVersion, v.MinorVersion, v.BuildNumber),
		Arch:    runtime.GOARCH,
	}, nil
}
