// Package vars holds build-time variables populated via the linker (ldflags).
package vars

import (
	"fmt"
	"io"
	"strconv"
	"time"
)

// License of the project
const License = "AGPL-3.0"

var (
	// Name of the project
	Name = "Warden"

	// Version of application (git tag), e.g. v1.2.3
	Version = "dev"

	// Commit is the full or short git SHA
	Commit = "unknown"

	// Revision is the count of commits
	Revision = 0

	// BuildTime in UTC
	BuildTime = time.Unix(0, 0).UTC()

	// URL to repository
	URL = "https://github.com/woozymasta/warden"

	_revision  string
	_buildTime string
)

// BuildInfo is the build metadata served by the version endpoint.
type BuildInfo struct {
	// betteralign:ignore

	BuildTime   time.Time `json:"build_time" example:"1970-01-01T00:00:00Z"`
	Name        string    `json:"name" example:"Warden"`
	Version     string    `json:"version" example:"v1.2.3"`
	Commit      string    `json:"commit" example:"da15c174cd2ada1ad247906536c101e8f6799def"`
	CommitShort string    `json:"commit_short,omitempty" example:"da15c17"`
	URL         string    `json:"url,omitempty"`
	License     string    `json:"license,omitempty" example:"AGPL-3.0"`
	Revision    int       `json:"revision,omitempty" example:"1337"`
}

func init() {
	if n, err := strconv.Atoi(_revision); err == nil {
		Revision = n
	}

	if _buildTime != "" {
		if t, err := time.Parse(time.RFC3339, _buildTime); err == nil {
			BuildTime = t.UTC()
		}
	}
}

// Info returns the current build metadata.
func Info() BuildInfo {
	return BuildInfo{
		Name:        Name,
		Version:     Version,
		Commit:      Commit,
		CommitShort: CommitShort(),
		Revision:    Revision,
		BuildTime:   BuildTime,
		URL:         URL,
		License:     License,
	}
}

// Fprint writes human readable build info to w.
func Fprint(w io.Writer) {
	_, _ = fmt.Fprintf(w, "name:     %s\nversion:  %s\ncommit:   %s\nrevision: %d\nbuilt:    %s\nlicense:  %s\n",
		Name, Version, Commit, Revision, BuildTime.Format(time.RFC3339), License)
}

// CommitShort returns the first 7 characters of the git commit hash.
func CommitShort() string {
	if len(Commit) > 7 {
		return Commit[:7]
	}

	return Commit
}
