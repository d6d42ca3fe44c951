package version

import (
	"fmt"
	"runtime"

	goversion "github.com/hashicorp/go-version"

	"github.com/satishbabariya/relq/runtime/remote"
)

var (
	// Version is the version of the CLI
	Version = "0.1.0"
	// BuildDate is the build date
	BuildDate = "unknown"
	// GitCommit is the git commit hash
	GitCommit = "unknown"
)

// Info holds version information
type Info struct {
	Version   string
	Protocol  string
	BuildDate string
	GitCommit string
	GoVersion string
	Platform  string
}

// Get returns version information
func Get() Info {
	return Info{
		Version:   Version,
		Protocol:  remote.ProtocolVersion,
		BuildDate: BuildDate,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String returns a formatted version string
func (i Info) String() string {
	return fmt.Sprintf("relq version %s (protocol %s, %s %s)", i.Version, i.Protocol, i.Platform, i.GoVersion)
}

// Compatibility describes how a server's protocol relates to ours.
type Compatibility struct {
	Server     string
	Client     string
	Compatible bool
	// ServerNewer is set when the server speaks a later minor or patch
	// version than this client.
	ServerNewer bool
	Err         error
}

// Check compares a server protocol version with the client's.
func Check(serverProtocol string) Compatibility {
	c := Compatibility{Server: serverProtocol, Client: remote.ProtocolVersion}
	if c.Server == "" {
		c.Server = "1.0.0"
	}
	if err := remote.CheckProtocol(c.Server); err != nil {
		c.Err = err
		return c
	}
	c.Compatible = true

	server, err := goversion.NewVersion(c.Server)
	if err != nil {
		c.Err = err
		return c
	}
	client := goversion.Must(goversion.NewVersion(c.Client))
	c.ServerNewer = server.GreaterThan(client)
	return c
}
