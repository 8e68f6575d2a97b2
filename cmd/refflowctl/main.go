// refflowctl is the operator CLI for the workflow service. It talks to the
// HTTP API; it never touches the database directly, so it is bound by the
// same capability gating as any other caller.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&pendingCmd{}, "review")
	subcommands.Register(&approveCmd{}, "review")
	subcommands.Register(&rejectCmd{}, "review")
	subcommands.Register(&auditCmd{}, "audit")

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}
