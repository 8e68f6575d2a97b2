package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"

	"github.com/google/subcommands"
)

// pendingCmd lists the approval queue.
type pendingCmd struct {
	apiFlags
	entityType string
}

func (*pendingCmd) Name() string     { return "pending" }
func (*pendingCmd) Synopsis() string { return "list entities awaiting review, oldest first" }
func (*pendingCmd) Usage() string {
	return `refflowctl pending [-type <entity-type>]

  Lists the approval queue: every entity in PENDING_APPROVAL, ordered by
  submission time.
`
}

func (c *pendingCmd) SetFlags(f *flag.FlagSet) {
	c.setCommonFlags(f)
	f.StringVar(&c.entityType, "type", "", "filter by entity type (PORTFOLIO, SECURITY, FIELD_DEFINITION)")
}

func (c *pendingCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	path := "/queue"
	if c.entityType != "" {
		path += "?entity_type=" + url.QueryEscape(c.entityType)
	}
	data, err := c.request("GET", path, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing queue: %v\n", err)
		return subcommands.ExitFailure
	}
	printJSON(data)
	return subcommands.ExitSuccess
}

// approveCmd approves one pending entity.
type approveCmd struct {
	apiFlags
	comments string
}

func (*approveCmd) Name() string     { return "approve" }
func (*approveCmd) Synopsis() string { return "approve a pending entity" }
func (*approveCmd) Usage() string {
	return `refflowctl approve [-m <comments>] <entity-id>

  Approves a PENDING_APPROVAL entity. The acting user must differ from the
  maker who submitted it.
`
}

func (c *approveCmd) SetFlags(f *flag.FlagSet) {
	c.setCommonFlags(f)
	f.StringVar(&c.comments, "m", "", "optional review comments")
}

func (c *approveCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: exactly one entity id is required")
		return subcommands.ExitUsageError
	}
	body := map[string]string{}
	if c.comments != "" {
		body["comments"] = c.comments
	}
	data, err := c.request("POST", "/entities/"+url.PathEscape(f.Arg(0))+"/approve", body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error approving: %v\n", err)
		return subcommands.ExitFailure
	}
	printJSON(data)
	return subcommands.ExitSuccess
}

// rejectCmd rejects one pending entity.
type rejectCmd struct {
	apiFlags
	comments string
}

func (*rejectCmd) Name() string     { return "reject" }
func (*rejectCmd) Synopsis() string { return "reject a pending entity" }
func (*rejectCmd) Usage() string {
	return `refflowctl reject -m <comments> <entity-id>

  Rejects a PENDING_APPROVAL entity. Comments are mandatory so the maker
  knows what to fix.
`
}

func (c *rejectCmd) SetFlags(f *flag.FlagSet) {
	c.setCommonFlags(f)
	f.StringVar(&c.comments, "m", "", "review comments (required)")
}

func (c *rejectCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: exactly one entity id is required")
		return subcommands.ExitUsageError
	}
	data, err := c.request("POST", "/entities/"+url.PathEscape(f.Arg(0))+"/reject", map[string]string{"comments": c.comments})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error rejecting: %v\n", err)
		return subcommands.ExitFailure
	}
	printJSON(data)
	return subcommands.ExitSuccess
}

// auditCmd tails the audit trail.
type auditCmd struct {
	apiFlags
	entityType string
	entityID   string
	limit      int
}

func (*auditCmd) Name() string     { return "audit" }
func (*auditCmd) Synopsis() string { return "show recent audit entries or one entity's trail" }
func (*auditCmd) Usage() string {
	return `refflowctl audit [-n <limit>] [-type <entity-type> -id <entity-id>]

  Without -id, shows the most recent audit entries across all entities.
  With -type and -id, shows the full trail for one entity.
`
}

func (c *auditCmd) SetFlags(f *flag.FlagSet) {
	c.setCommonFlags(f)
	f.StringVar(&c.entityType, "type", "", "entity type for a single-entity trail")
	f.StringVar(&c.entityID, "id", "", "entity id for a single-entity trail")
	f.IntVar(&c.limit, "n", 20, "number of recent entries to show")
}

func (c *auditCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	path := fmt.Sprintf("/audit/recent?limit=%d", c.limit)
	if c.entityID != "" {
		if c.entityType == "" {
			fmt.Fprintln(os.Stderr, "Error: -type is required with -id")
			return subcommands.ExitUsageError
		}
		path = "/audit/entities/" + url.PathEscape(c.entityType) + "/" + url.PathEscape(c.entityID)
	}
	data, err := c.request("GET", path, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading audit trail: %v\n", err)
		return subcommands.ExitFailure
	}
	printJSON(data)
	return subcommands.ExitSuccess
}

func (a *apiFlags) setCommonFlags(f *flag.FlagSet) {
	f.StringVar(&a.server, "server", defaultServer(), "workflow server base URL")
	f.StringVar(&a.actor, "actor", os.Getenv("REFFLOW_ACTOR"), "acting user id")
	f.StringVar(&a.capabilities, "caps", "workflow:submit,workflow:review", "comma-separated capability claims")
}
