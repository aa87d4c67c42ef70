package container

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// OsInfo is the platform of an image or host. For Windows, Version keeps the build
// number as its last component, for example "10.0.17763".
type OsInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Arch    string `json:"arch"`
}

func (o OsInfo) IsWindows() bool { return strings.EqualFold(o.Name, "windows") }

// WindowsBuild returns the build number in Version, or 0 when there is none.
func (o OsInfo) WindowsBuild() int {
	v := o.Version
	if i := strings.LastIndexByte(v, '.'); i >= 0 {
		v = v[i+1:]
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// WindowsVersion is the marketing version for the build, if known.
func (o OsInfo) WindowsVersion() (string, bool) {
	v, ok := windowsVersions[o.WindowsBuild()]
	return v, ok
}

func (o OsInfo) String() string {
	return fmt.Sprintf("%s %s (%s)", o.Name, o.Version, o.Arch)
}

// windowsVersions maps Windows build numbers to the release an image must match
// for process isolation. Read only.
var windowsVersions = map[int]string{
	14393: "1607",
	16299: "1709",
	17134: "1803",
	17763: "1809",
	18362: "1903",
	18363: "1909",
	19041: "2004",
	19042: "20H2",
	20348: "ltsc2022",
	26100: "ltsc2025",
}

// parseOsInfo decodes the "Os%OsVersion%Architecture" line of an image inspect.
func parseOsInfo(line string) (OsInfo, error) {
	fields := strings.Split(line, "%")
	if len(fields) != 3 {
		return OsInfo{}, fmt.Errorf("unexpected image os info %q", line)
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	info := OsInfo{Name: capitalize(fields[0]), Version: fields[1], Arch: fields[2]}
	if info.Name == "Windows" {
		if i := strings.LastIndexByte(info.Version, '.'); i >= 0 {
			info.Version = info.Version[:i]
		}
	}
	return info, nil
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
