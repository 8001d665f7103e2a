// Package config loads the TOML configuration of the client and the
// reference file server. A missing file is not an error: defaults apply and
// command-line flags override whatever was loaded.
package config

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	logs "github.com/danmuck/smplog"
)

const (
	DefaultDestTag     = "~/S1"
	DefaultChunkSize   = 4096
	MinChunkSize       = 512
	MaxChunkSize       = 1 << 20
	DefaultJournalPath = "./local/history.journal"
	DefaultServerRoot  = "./local/S1"
	DefaultListenAddr  = "127.0.0.1:9000"
)

var defaultExtensions = []string{".txt", ".pdf", ".c", ".zip"}

// Duration is a time.Duration written as a Go duration string ("5s", "250ms").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Remote is a named server entry, selectable with the client's -r flag.
type Remote struct {
	Name string `toml:"name"`
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

type ClientConfig struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	DestTag     string   `toml:"dest_tag"`
	DownloadDir string   `toml:"download_dir"`
	ChunkSize   int      `toml:"chunk_size"`
	DialTimeout Duration `toml:"dial_timeout"`
	DSCP        int      `toml:"dscp"`
	ByteOrder   string   `toml:"byte_order"`
	Extensions  []string `toml:"extensions"`
	JournalPath string   `toml:"journal_path"`
	Remotes     []Remote `toml:"remotes"`
}

type ServerConfig struct {
	Listen    string `toml:"listen"`
	Root      string `toml:"root"`
	ChunkSize int    `toml:"chunk_size"`
	ByteOrder string `toml:"byte_order"`
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		DestTag:     DefaultDestTag,
		DownloadDir: ".",
		ChunkSize:   DefaultChunkSize,
		ByteOrder:   "little",
		Extensions:  append([]string(nil), defaultExtensions...),
		JournalPath: DefaultJournalPath,
	}
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Listen:    DefaultListenAddr,
		Root:      DefaultServerRoot,
		ChunkSize: DefaultChunkSize,
		ByteOrder: "little",
	}
}

// LoadClientConfig overlays the file at path on the defaults.
func LoadClientConfig(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()
	if err := decodeFile(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadServerConfig overlays the file at path on the defaults.
func LoadServerConfig(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	if err := decodeFile(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decodeFile(path string, v any) error {
	if path == "" {
		return nil
	}
	meta, err := toml.DecodeFile(path, v)
	if errors.Is(err, os.ErrNotExist) {
		logs.Debugf("config %s not found, using defaults", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	for _, key := range meta.Undecoded() {
		logs.Warnf("config %s: unknown key %q ignored", path, key.String())
	}
	return nil
}

// Save writes v as TOML to path, creating parent directories.
func Save(path string, v any) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	encoder.Indent = "    "
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// Remote looks up a named remote.
func (c ClientConfig) Remote(name string) (Remote, bool) {
	for _, r := range c.Remotes {
		if r.Name == name {
			return r, true
		}
	}
	return Remote{}, false
}

// UseRemote copies the named remote's host and port into c.
func (c *ClientConfig) UseRemote(name string) error {
	r, ok := c.Remote(name)
	if !ok {
		return fmt.Errorf("unknown remote %q", name)
	}
	c.Host = r.Host
	c.Port = r.Port
	return nil
}

// Order returns the configured byte order, or little-endian if it is invalid.
func (c ClientConfig) Order() binary.ByteOrder {
	order, err := ParseByteOrder(c.ByteOrder)
	if err != nil {
		return binary.LittleEndian
	}
	return order
}

func (c ClientConfig) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return errors.New("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range [1, 65535]", c.Port)
	}
	if !strings.HasPrefix(c.DestTag, DefaultDestTag) {
		return fmt.Errorf("dest_tag %q must start with %s", c.DestTag, DefaultDestTag)
	}
	if err := checkChunkSize(c.ChunkSize); err != nil {
		return err
	}
	if c.DialTimeout.Duration < 0 {
		return fmt.Errorf("dial_timeout %s is negative", c.DialTimeout)
	}
	if c.DSCP < 0 || c.DSCP > 63 {
		return fmt.Errorf("dscp %d out of range [0, 63]", c.DSCP)
	}
	if _, err := ParseByteOrder(c.ByteOrder); err != nil {
		return err
	}
	for i, r := range c.Remotes {
		if r.Name == "" || r.Host == "" {
			return fmt.Errorf("remotes[%d]: name and host are required", i)
		}
		if r.Port <= 0 || r.Port > 65535 {
			return fmt.Errorf("remote %q: port %d out of range", r.Name, r.Port)
		}
	}
	return nil
}

func (c ServerConfig) Order() binary.ByteOrder {
	order, err := ParseByteOrder(c.ByteOrder)
	if err != nil {
		return binary.LittleEndian
	}
	return order
}

func (c ServerConfig) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return errors.New("listen address is required")
	}
	if strings.TrimSpace(c.Root) == "" {
		return errors.New("root directory is required")
	}
	if err := checkChunkSize(c.ChunkSize); err != nil {
		return err
	}
	_, err := ParseByteOrder(c.ByteOrder)
	return err
}

// ParseByteOrder accepts "little"/"le" and "big"/"be"/"network"; empty means little.
func ParseByteOrder(s string) (binary.ByteOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "little", "le":
		return binary.LittleEndian, nil
	case "big", "be", "network":
		return binary.BigEndian, nil
	default:
		return nil, fmt.Errorf("unknown byte_order %q, want little or big", s)
	}
}

func checkChunkSize(n int) error {
	if n < MinChunkSize || n > MaxChunkSize {
		return fmt.Errorf("chunk_size %d out of range [%d, %d]", n, MinChunkSize, MaxChunkSize)
	}
	return nil
}
