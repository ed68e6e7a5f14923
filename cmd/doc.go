// Package cmd implements the command-line interface for applytrack.
//
// This package provides the following commands:
//   - serve: Start the HTTP API (and MCP over HTTP), or an MCP server on stdio
//   - sync: Run one inbox sync for an owner, e.g. from cron
//   - migrate: Apply database migrations
//   - token: Mint a bearer token for local development
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for the MCP tools
//
// Configuration is read from defaults, an optional YAML file (--config), a
// .env file, APPLYTRACK_* environment variables and flags.
package cmd
