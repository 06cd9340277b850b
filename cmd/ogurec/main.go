// Ogurec - man-in-the-middle relay for Terraria multiplayer sessions.
//
// Ogurec accepts a game client, dials the real server, forwards every frame
// verbatim in both directions and rewrites the damage the client deals to
// other players. An optional admin API, MQTT telemetry and an SQLite
// intercept journal observe the relay through its event bus.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/iskrim46/ogurec/internal/cli"
)

// Set with -ldflags "-X main.version=..." at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	root := cli.NewRoot(cli.BuildInfo{Version: version, Commit: commit, Date: date})
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
