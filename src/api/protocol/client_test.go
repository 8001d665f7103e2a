package protocol

import (
	"errors"
	"net"
	"strconv"
	"testing"

	"github.com/danmuck/s25_files/src/api/transport"
)

type countingDialer struct {
	calls int
}

func (d *countingDialer) Dial(host string, port int) (net.Conn, error) {
	d.calls++
	return nil, errors.New("dial should not be reached")
}

func TestClientRejectsBeforeDialing(t *testing.T) {
	files := newMemFS(map[string]string{"a.txt": "a"})
	tests := []struct {
		name string
		run  func(c *Client) error
	}{
		{"upload path with separator", func(c *Client) error { _, err := c.Upload("", "docs/a.txt"); return err }},
		{"upload bad extension", func(c *Client) error { _, err := c.Upload("", "a.exe"); return err }},
		{"upload missing file", func(c *Client) error { _, err := c.Upload("", "none.txt"); return err }},
		{"download too many", func(c *Client) error { _, err := c.Download("a", "b", "c"); return err }},
		{"remove none", func(c *Client) error { _, err := c.Remove(); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &countingDialer{}
			c := &Client{Host: "127.0.0.1", Port: 1, Dialer: d, Engine: testEngine(files)}
			err := tt.run(c)
			if !transport.IsKind(err, transport.KindValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if d.calls != 0 {
				t.Fatalf("dialer called %d times", d.calls)
			}
		})
	}
}

// serveOnce accepts one connection and hands it to handle with a framer.
func serveOnce(t *testing.T, handle func(f *transport.Framer) error) (string, int, <-chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	done := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			done <- err
			return
		}
		defer conn.Close()
		done <- handle(transport.NewFramer(conn, nil))
	}()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return host, port, done
}

func TestClientRemoveOverTCP(t *testing.T) {
	host, port, done := serveOnce(t, func(f *transport.Framer) error {
		tag, err := f.RecvTag()
		if err != nil {
			return err
		}
		if string(tag[:]) != "REMF" {
			return errors.New("unexpected tag " + string(tag[:]))
		}
		n, err := f.RecvInt32()
		if err != nil {
			return err
		}
		for i := int32(0); i < n; i++ {
			if _, err := f.RecvString(MaxNameLength); err != nil {
				return err
			}
		}
		if err := f.SendInt32(0); err != nil {
			return err
		}
		return f.SendInt32(1)
	})

	c := NewClient(host, port)
	res, err := c.Remove("~/S1/a.txt", "~/S1/b.txt")
	if err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if res.Removals[0].Removed || !res.Removals[1].Removed {
		t.Fatalf("unexpected flags: %+v", res.Removals)
	}
	if err := <-done; err != nil {
		t.Fatalf("server side failed: %v", err)
	}
}

func TestClientUploadOverTCP(t *testing.T) {
	files := newMemFS(map[string]string{"report.txt": "quarterly numbers"})
	got := make(chan string, 1)
	host, port, done := serveOnce(t, func(f *transport.Framer) error {
		if _, err := f.RecvTag(); err != nil {
			return err
		}
		if _, err := f.RecvInt32(); err != nil {
			return err
		}
		if _, err := f.RecvString(MaxNameLength); err != nil {
			return err
		}
		if _, err := f.RecvString(MaxNameLength); err != nil {
			return err
		}
		size, err := f.RecvInt64()
		if err != nil {
			return err
		}
		body, err := f.ReadAll(int(size))
		if err != nil {
			return err
		}
		got <- string(body)
		return nil
	})

	c := NewClient(host, port)
	c.Engine = testEngine(files)
	if _, err := c.Upload("", "report.txt"); err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("server side failed: %v", err)
	}
	if body := <-got; body != "quarterly numbers" {
		t.Fatalf("server received %q", body)
	}
}

func TestClientConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	ln.Close()

	c := NewClient("127.0.0.1", port)
	_, err = c.Remove("~/S1/a.txt")
	if !transport.IsKind(err, transport.KindConnect) {
		t.Fatalf("expected connect error, got %v", err)
	}
}

func TestClientAddr(t *testing.T) {
	if got := NewClient("::1", 8080).Addr(); got != "[::1]:8080" {
		t.Fatalf("unexpected addr %q", got)
	}
}
