// Package ipc provides JSON-RPC daemon control over a Unix domain socket.
package ipc
