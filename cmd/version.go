package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// BuildInfo describes the binary as stamped by `go build`.
// `go run` and `go test` do not stamp any vcs settings.
type BuildInfo struct {
	Revision  string `json:"revision"`
	Time      string `json:"time"`
	Modified  bool   `json:"modified"`
	GoVersion string `json:"goVersion"`
}

// ReadBuildInfo returns the build info of the running binary.
// Without a known revision or with uncommitted changes the revision is reported as "@latest".
func ReadBuildInfo() BuildInfo {
	build := BuildInfo{GoVersion: runtime.Version()} //nolint:exhaustruct

	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				build.Revision = s.Value
			case "vcs.time":
				build.Time = s.Value
			case "vcs.modified":
				build.Modified = s.Value == "true"
			}
		}
	}

	if build.Modified || build.Revision == "" {
		build.Revision = "@latest"
		build.Time = time.Now().UTC().Format(time.RFC3339)
	}

	return build
}

// Version returns the `version` command. name prefixes the output, if given.
func Version(name string) *cobra.Command {
	name = strings.TrimSpace(name)

	var asJSON bool

	cmd := &cobra.Command{
		Use:                   "version",
		Short:                 "Print " + strings.TrimSpace(name+" version"),
		Args:                  cobra.NoArgs,
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			build := ReadBuildInfo()

			if asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(build) //nolint:wrapcheck
			}

			prefix := strings.TrimSpace(name + " version")
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s from %s, built with %s\n", prefix, build.Revision, build.Time, build.GoVersion)

			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the build info as json")

	return cmd
}
