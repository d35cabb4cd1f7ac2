// Package version provides the datapipeline-deploy version strings.
package version

import (
	_ "embed"
	"strings"
)

// You can override buildVersion at compile time by using:
//
//  go run -ldflags "-X github.com/buildkite/datapipeline-deploy/version.buildVersion=abc" . --version
//
// Release binaries are always built with the buildVersion variable set.

//go:embed VERSION
var baseVersion string
var buildVersion string

func Version() string {
	return strings.TrimSpace(baseVersion)
}

func BuildVersion() string {
	if buildVersion == "" {
		return "x"
	}
	return buildVersion
}

// FullVersion is the version with the build suffix, as printed by --version.
func FullVersion() string {
	return Version() + "+" + BuildVersion()
}

// AppID identifies this tool in the AWS SDK's user agent.
func AppID() string {
	return "datapipeline-deploy/" + Version()
}
