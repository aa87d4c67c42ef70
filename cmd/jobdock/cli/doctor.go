package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/majorcontext/jobdock/internal/config"
	"github.com/majorcontext/jobdock/internal/container"
	"github.com/majorcontext/jobdock/internal/docker"
	"github.com/majorcontext/jobdock/internal/doctor"
	"github.com/majorcontext/jobdock/internal/ui"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnostic information about the agent environment",
	Long: `Displays diagnostic information for debugging an agent:

- jobdock version and platform
- the engine CLI in use and the daemon it talks to
- effective service and debug settings

Registry passwords and tokens are never printed; only the registries are listed.`,
	RunE: runDoctor,
}

// newDaemonClient is replaced in tests.
var newDaemonClient = docker.NewClient

const doctorTimeout = 10 * time.Second

func init() {
	rootCmd.AddCommand(doctorCmd)
}

// doctorReport is the --json form of the doctor output.
type doctorReport struct {
	Version     string             `json:"version"`
	Platform    string             `json:"platform"`
	Host        *container.OsInfo  `json:"host,omitempty"`
	Binary      string             `json:"binary,omitempty"`
	DockerHost  string             `json:"docker_host,omitempty"`
	Daemon      *docker.DaemonInfo `json:"daemon,omitempty"`
	Problems    []string           `json:"problems,omitempty"`
	Poll        string             `json:"poll_interval"`
	Deadline    string             `json:"readiness_deadline,omitempty"`
	Mappings    int                `json:"image_mappings"`
	Registries  []string           `json:"registries,omitempty"`
	DebugDir    string             `json:"debug_dir"`
	BuiltinAuth bool               `json:"builtin_login"`
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), doctorTimeout)
	defer cancel()

	r := collectDoctorReport(ctx, globalCfg)
	if jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	printDoctorReport(cmd.OutOrStdout(), r)
	return nil
}

func collectDoctorReport(ctx context.Context, cfg *config.GlobalConfig) doctorReport {
	r := doctorReport{
		Version:     version,
		Platform:    runtime.GOOS + "/" + runtime.GOARCH,
		Poll:        cfg.Services.PollInterval.String(),
		Mappings:    len(cfg.ImageMappings),
		DebugDir:    debugDir(),
		BuiltinAuth: cfg.BuiltinLogin != nil,
	}
	if cfg.Services.ReadinessDeadline > 0 {
		r.Deadline = cfg.Services.ReadinessDeadline.String()
	}
	for _, l := range cfg.RegistryLogins {
		r.Registries = append(r.Registries, l.RegistryURL)
	}
	if host, err := hostOsInfo(); err == nil {
		r.Host = &host
	} else {
		r.Problems = append(r.Problems, err.Error())
	}

	d, err := newEngine(cfg)
	if err != nil {
		r.Problems = append(r.Problems, err.Error())
		return r
	}
	r.Binary = d.Binary()
	r.DockerHost = d.Host()

	dc, err := newDaemonClient(d.Host())
	if err != nil {
		r.Problems = append(r.Problems, err.Error())
		return r
	}
	defer dc.Close()
	info, err := dc.Info(ctx)
	if err != nil {
		r.Problems = append(r.Problems, err.Error())
		return r
	}
	r.Daemon = &info
	return r
}

// funcSection adapts a print function to doctor.Section.
type funcSection struct {
	name string
	fn   func(w io.Writer) error
}

func (s funcSection) Name() string            { return s.name }
func (s funcSection) Print(w io.Writer) error { return s.fn(w) }

func printDoctorReport(w io.Writer, r doctorReport) {
	fmt.Fprintln(w, ui.Bold("jobdock doctor"))
	fmt.Fprintln(w)

	reg := doctor.NewRegistry()
	reg.Register(
		funcSection{"Agent", func(w io.Writer) error { return printAgent(w, r) }},
		funcSection{"Engine", func(w io.Writer) error { return printEngine(w, r) }},
		funcSection{"Settings", func(w io.Writer) error { return printSettings(w, r) }},
	)
	if len(r.Problems) > 0 {
		reg.Register(funcSection{"Problems", func(w io.Writer) error {
			for _, p := range r.Problems {
				fmt.Fprintf(w, "%s %s\n", ui.FailTag(), p)
			}
			return nil
		}})
	}
	reg.Print(w)
}

func printAgent(w io.Writer, r doctorReport) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Version:\t%s\n", r.Version)
	fmt.Fprintf(tw, "Platform:\t%s\n", r.Platform)
	if r.Host != nil {
		fmt.Fprintf(tw, "Host OS:\t%s\n", r.Host)
	}
	return tw.Flush()
}

func printEngine(w io.Writer, r doctorReport) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if r.Binary != "" {
		fmt.Fprintf(tw, "CLI:\t%s %s\n", ui.OKTag(), r.Binary)
	} else {
		fmt.Fprintf(tw, "CLI:\t%s not found\n", ui.FailTag())
	}
	if r.DockerHost != "" {
		fmt.Fprintf(tw, "DOCKER_HOST:\t%s\n", r.DockerHost)
	}
	switch {
	case r.Daemon != nil:
		fmt.Fprintf(tw, "Daemon:\t%s %s (API %s) at %s\n", ui.OKTag(), r.Daemon.Version, r.Daemon.APIVersion, r.Daemon.Host)
		fmt.Fprintf(tw, "Daemon OS:\t%s/%s\n", r.Daemon.OS, r.Daemon.Arch)
		if r.Daemon.BuilderVersion == "2" {
			fmt.Fprintf(tw, "BuildKit:\t%s default builder\n", ui.OKTag())
		} else {
			fmt.Fprintf(tw, "BuildKit:\t%s not the default builder\n", ui.WarnTag())
		}
	case r.Binary != "":
		fmt.Fprintf(tw, "Daemon:\t%s not reachable\n", ui.FailTag())
	}
	return tw.Flush()
}

func printSettings(w io.Writer, r doctorReport) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Poll interval:\t%s\n", r.Poll)
	if r.Deadline != "" {
		fmt.Fprintf(tw, "Readiness deadline:\t%s\n", r.Deadline)
	} else {
		fmt.Fprintf(tw, "Readiness deadline:\t%s\n", ui.Dim("none"))
	}
	fmt.Fprintf(tw, "Image mappings:\t%d\n", r.Mappings)
	for _, reg := range r.Registries {
		fmt.Fprintf(tw, "Registry login:\t%s\n", reg)
	}
	if r.BuiltinAuth {
		fmt.Fprintln(tw, "Built-in login:\tconfigured")
	}
	fmt.Fprintf(tw, "Debug logs:\t%s\n", r.DebugDir)
	return tw.Flush()
}
