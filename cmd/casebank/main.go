/*
Package main is the entry point for the casebank CLI.

casebank is a retrieval and learning engine for test-case generation. It
stores the test cases produced for past user stories and serves the most
relevant ones, ranked by semantic, domain, keyword, quality and recency
signals, as few-shot examples for new stories.

Usage:

	casebank [command]

Available Commands:

	serve      Run the MCP server (stdio transport)
	retrieve   Rank past examples for a user story
	record     Store test cases for a story without a prior retrieval
	feedback   Rate recorded test cases (0.0 - 5.0)
	seed       Import sample stories and test cases
	reindex    Recompute every stored embedding
	benchmark  Measure retrieval quality
	learning   Inspect and manage the learning store
	config     Create or show casebank configuration
	version    Show version information

Examples:

	# Write a default config
	casebank config init

	# Import samples, then run as MCP server
	casebank seed samples.json
	casebank serve
*/
package main

import (
	"fmt"
	"os"

	"github.com/khanglvm/casebank/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
