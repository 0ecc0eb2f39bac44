// Package gateway connects the bot to the Discord gateway.
//
// Client implements lifecycle.Gateway: Connect verifies the token over REST
// before opening the websocket so that a rejected token surfaces as
// ErrAuthentication, then blocks until the context is cancelled. Once the
// session is ready the slash commands are registered; a registration failure
// is logged and does not abort the connection.
//
// Interaction handlers run as tasks of the provided Spawner so that replies in
// flight are awaited during shutdown.
package gateway
