// Package common provides helpers shared by the MCP tool packages: owner
// resolution and the instrumentation wrapper every tool handler goes
// through.
package common
