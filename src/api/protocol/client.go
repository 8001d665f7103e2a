package protocol

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/danmuck/s25_files/src/api/transport"
	logs "github.com/danmuck/smplog"
)

// Client runs each command on its own connection to Host:Port.
type Client struct {
	Host    string
	Port    int
	Timeout time.Duration // whole-exchange deadline; 0 = none (use for large transfers)
	Dialer  transport.StreamDialer
	Engine  *Engine
}

// NewClient returns a client with the default dialer and engine.
func NewClient(host string, port int) *Client {
	return &Client{
		Host:   host,
		Port:   port,
		Dialer: &transport.Dialer{Timeout: 10 * time.Second},
		Engine: NewEngine(),
	}
}

// Addr is the server address in host:port form.
func (c *Client) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Execute validates req, then dials, runs the exchange and closes the
// connection. Invalid requests never reach the network.
func (c *Client) Execute(req Request) (*Result, error) {
	engine := c.engine()
	if err := engine.Validate(req); err != nil {
		return nil, err
	}

	conn, err := c.dialer().Dial(c.Host, c.Port)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if c.Timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(c.Timeout)); err != nil {
			return nil, transport.NewError(transport.KindConnect, "dial", c.Addr(), fmt.Errorf("set deadline: %w", err))
		}
	}

	logs.Debugf("Execute(%s): %d item(s) via %s", req.Command(), len(req.Items()), c.Addr())
	return engine.Do(conn, req)
}

// Upload sends files to destTag ("" = DefaultDestTag).
func (c *Client) Upload(destTag string, files ...string) (*Result, error) {
	return c.Execute(UploadRequest{DestTag: destTag, Files: files})
}

// Download fetches paths into the engine's DownloadDir.
func (c *Client) Download(paths ...string) (*Result, error) {
	return c.Execute(DownloadRequest{Paths: paths})
}

// Remove asks the server to delete paths.
func (c *Client) Remove(paths ...string) (*Result, error) {
	return c.Execute(RemoveRequest{Paths: paths})
}

func (c *Client) engine() *Engine {
	if c.Engine == nil {
		c.Engine = NewEngine()
	}
	return c.Engine
}

func (c *Client) dialer() transport.StreamDialer {
	if c.Dialer == nil {
		c.Dialer = &transport.Dialer{}
	}
	return c.Dialer
}
