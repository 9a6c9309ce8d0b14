package featurechain

import "fmt"

// Set at build time with -ldflags "-X github.com/loomnetwork/featurechain.Build=...".
var (
	Version = "0.1.0"
	Build   = ""
	GitSHA  = ""
)

// FullVersion returns the release version followed by the build number, or by "dev" and the
// short commit hash for local builds.
func FullVersion() string {
	if Build != "" {
		return fmt.Sprintf("%s+b%s", Version, Build)
	}
	sha := GitSHA
	if len(sha) > 8 {
		sha = sha[:8]
	}
	return Version + "+dev" + sha
}
