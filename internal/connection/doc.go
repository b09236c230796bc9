// Package connection owns the duplex channel to the relay server.
//
// The package implements:
//   - Manager: the connection state machine (Connecting, Open, Reconnecting,
//     Closed), exponential reconnect backoff and the outbound send gate
//   - Transport / Channel: the seam between the state machine and the wire
//   - WebSocketTransport: a gorilla/websocket transport with read and write pumps
//
// All Manager methods and Events callbacks run on the session's loop.Scheduler.
package connection
