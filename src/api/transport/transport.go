package transport

import "net"

// StreamDialer opens a connected byte stream to host:port.
type StreamDialer interface {
	Dial(host string, port int) (net.Conn, error) // resolve + connect, one address, no retry
}

// ConnHandler serves a single accepted connection. The listener closes the
// connection after the handler returns.
type ConnHandler func(conn net.Conn)

type ListenHandler interface {
	ListenAndAccept() error // listen and start the accept loop
	Addr() net.Addr         // bound address, valid after ListenAndAccept
	Close() error           // stop accepting and wait for the loop to exit
}
