// Package stream serves live parking state over WebSocket.
//
// Every client gets the current state on connect and then one message per
// successful mutation:
//
//	{"event": "state", "data": { /* same schema as GET /state */ }}
//
// Hub.OnChange is registered as an observer on the instrumented lot, so
// mutations made over HTTP and from the local shell are both streamed.
package stream
