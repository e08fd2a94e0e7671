// Package redgreen runs a project's test command, watches it, and feeds
// failures to an AI agent for repair.
package redgreen

// Version is the release version reported by the CLI and the MCP server.
const Version = "v0.3.0"
