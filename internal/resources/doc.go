// Package resources provides MCP resources for the owner of a connection.
// Resources are read-only data MCP clients fetch without calling a tool.
// Each read resolves the owner the same way the tools do, so clients only
// see their own data.
package resources
