// Command aegis-core is the control plane binary: it loads configuration,
// boots the trace ledger, policy engine, tool registry, intent router, and
// provider client, and serves the HTTP control surface.
package main

import "github.com/aegiscore/aegis/cmd/aegis-core/cmd"

func main() {
	cmd.Execute()
}
