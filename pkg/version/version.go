package version

import (
	"fmt"
	"runtime"
	"time"
)

// Set at build time with -ldflags "-X github.com/telekom/issuemail/pkg/version.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	// BuildDate is RFC3339 when set by the release build.
	BuildDate = "unknown"
	GoVersion = runtime.Version()
	Platform  = runtime.GOOS + "/" + runtime.GOARCH
)

// BuildInfo is printed by `issuemail version` and stamped on outgoing mail.
type BuildInfo struct {
	Version   string    `json:"version"`
	GitCommit string    `json:"gitCommit"`
	BuildDate string    `json:"buildDate"`
	GoVersion string    `json:"goVersion"`
	Platform  string    `json:"platform"`
	BuildTime time.Time `json:"buildTime,omitempty"`
}

func GetBuildInfo() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: GoVersion,
		Platform:  Platform,
	}
	if t, err := time.Parse(time.RFC3339, BuildDate); err == nil {
		info.BuildTime = t
	}
	return info
}

func (b BuildInfo) String() string {
	return fmt.Sprintf("issuemail %s (commit %s, built %s, %s, %s)", b.Version, b.GitCommit, b.BuildDate, b.GoVersion, b.Platform)
}

// Mailer is the X-Mailer header value, e.g. "issuemail/1.2.3 (abc1234)".
func (b BuildInfo) Mailer() string {
	commit := b.GitCommit
	if commit == "" || commit == "unknown" {
		return "issuemail/" + b.Version
	}
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return fmt.Sprintf("issuemail/%s (%s)", b.Version, commit)
}
