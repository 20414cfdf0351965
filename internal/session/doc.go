// Package session hosts the per-session actor that owns one user's
// credential accessors, token manager, and brokerage client.
//
// An actor's life is a small state machine: UNINITIALIZED → INITIALIZING →
// READY, with RECOVERING re-entering the chain on reconnect. Initialization
// runs a strict step order because later steps depend on earlier ones: a
// minimal tool is registered synchronously before any other work so the
// actor is discoverable even while setup is still in flight, the token
// manager is initialized before the client is constructed so the client
// never binds to an unloaded manager, and the full toolset only appears
// once everything underneath it is ready.
//
// Recovery is tiered: probe the existing manager for a live token, then ask
// it to reload its persisted credential, then rebuild everything from
// scratch. Each tier is attempted only when the previous one failed, and a
// failure in the last tier reports false instead of propagating, leaving
// the connection layer to decide what to do with the session.
package session
