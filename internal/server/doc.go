// Package server wires tradegate's HTTP surface: the authorization
// endpoints, the MCP streamable HTTP transport, and the session registry
// that binds incoming streams to their actors.
//
// The MCP endpoint is wrapped by a stream-entry handler that runs session
// recovery before delegating to the transport, so every reconnecting
// stream passes through the tiered recovery chain and a request never
// reaches a tool with a dead brokerage connection that could have been
// revived.
package server
