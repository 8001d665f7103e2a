package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	logs "github.com/danmuck/smplog"
	"golang.org/x/net/ipv4"
)

// Dialer resolves a host and connects a TCP stream to the first address.
type Dialer struct {
	Timeout  time.Duration // 0 = operating system default
	DSCP     int           // 0 = leave the TOS byte alone
	Resolver *net.Resolver // nil = net.DefaultResolver
}

// Dial resolves host, picks the first IPv4 address (or the first address
// when there is no IPv4 one) and connects to it. There is no fallback to
// other addresses and no retry.
func (d *Dialer) Dial(host string, port int) (net.Conn, error) {
	target := net.JoinHostPort(host, strconv.Itoa(port))
	if port <= 0 || port > 65535 {
		return nil, NewError(KindConnect, "dial", target, fmt.Errorf("invalid port %d", port))
	}

	ip, err := d.resolve(host)
	if err != nil {
		return nil, NewError(KindResolution, "dial", host, err)
	}

	addr := net.JoinHostPort(ip.String(), strconv.Itoa(port))
	logs.Debugf("Dial(%s): resolved %s", target, addr)

	dialer := net.Dialer{Timeout: d.Timeout}
	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		return nil, NewError(KindConnect, "dial", target, err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}
	if d.DSCP > 0 && ip.To4() != nil {
		// TOS carries DSCP in its upper six bits.
		if err := ipv4.NewConn(conn).SetTOS(d.DSCP << 2); err != nil {
			logs.Debugf("Dial(%s): set DSCP %d: %v", target, d.DSCP, err)
		}
	}
	return conn, nil
}

func (d *Dialer) resolve(host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip, nil
	}
	resolver := d.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	addrs, err := resolver.LookupIPAddr(context.Background(), host)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no addresses for host %s", host)
	}
	for _, a := range addrs {
		if v4 := a.IP.To4(); v4 != nil {
			return v4, nil
		}
	}
	return addrs[0].IP, nil
}

// TCPHandler accepts connections and serves them one at a time.
type TCPHandler struct {
	address  string
	listener net.Listener
	handle   ConnHandler
	exit     chan any
	done     chan struct{}
	once     sync.Once
}

// TCPHandler generator function
func NewTCPHandler(address string, handle ConnHandler, exit chan any) *TCPHandler {
	logs.Debugf("NewTCPHandler(%s)", address)
	if exit == nil {
		exit = make(chan any)
	}
	return &TCPHandler{
		address: address,
		handle:  handle,
		exit:    exit,
		done:    make(chan struct{}),
	}
}

// Listen and accept connections via TCPHandler.listener
func (h *TCPHandler) ListenAndAccept() error {
	logs.Debugf("ListenAndAccept(%s)", h.address)
	var err error
	h.listener, err = net.Listen("tcp", h.address)
	if err != nil {
		return err
	}

	go h.acceptConnections()

	return nil
}

func (h *TCPHandler) Addr() net.Addr {
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

// close the listener and wait for the accept loop to release it
func (h *TCPHandler) Close() error {
	logs.Debugf("Close(start)")
	var err error
	h.once.Do(func() {
		if h.listener == nil {
			close(h.done)
			return
		}
		err = h.listener.Close()
	})
	<-h.done
	logs.Debugf("Close(done)")
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// listener accept loop; connections are served serially
func (h *TCPHandler) acceptConnections() {
	logs.Debugf("acceptConnections(): start")
	defer close(h.done)
	defer h.listener.Close()
	for {
		select {
		case <-h.exit:
			logs.Debugf("acceptConnections(): exit")
			return
		default:
			if tl, ok := h.listener.(*net.TCPListener); ok {
				tl.SetDeadline(time.Now().Add(500 * time.Millisecond))
			}
			conn, err := h.listener.Accept()
			if err != nil {
				if opErr, ok := err.(*net.OpError); ok && opErr.Timeout() {
					// Timeout, continue to check exit
					continue
				}
				if !errors.Is(err, net.ErrClosed) {
					logs.Warnf("acceptConnections error: %s", err)
				}
				return
			}
			h.serve(conn)
		}
	}
}

func (h *TCPHandler) serve(conn net.Conn) {
	defer conn.Close()
	clientAddr := conn.RemoteAddr().String()
	logs.Debugf("serve(%s): start", clientAddr)
	h.handle(conn)
	logs.Debugf("serve(%s): connection released", clientAddr)
}

var (
	_ StreamDialer  = (*Dialer)(nil)
	_ ListenHandler = (*TCPHandler)(nil)
)
