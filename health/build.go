package health

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// buildInfo summarizes the module version and VCS stamp of the binary.
func buildInfo() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return runtime.Version()
	}

	version := info.Main.Version
	if version == "" {
		version = "(devel)"
	}

	var revision, modified string
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			if setting.Value == "true" {
				modified = "-dirty"
			}
		}
	}

	if len(revision) > 7 {
		revision = revision[:7]
	}
	if revision == "" {
		revision = "unknown"
	}

	return fmt.Sprintf("%s-%s%s (%s)", version, revision, modified, info.GoVersion)
}
