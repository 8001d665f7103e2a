package main

import (
	"fmt"
	"os"

	"github.com/akamensky/argparse"
	"github.com/danmuck/s25_files/cmd/internal/logcfg"
	"github.com/danmuck/s25_files/src/api/protocol"
	"github.com/danmuck/s25_files/src/api/transport"
	"github.com/danmuck/s25_files/src/config"
	"github.com/danmuck/s25_files/src/journal"
	"github.com/danmuck/s25_files/src/policy"
	logs "github.com/danmuck/smplog"
)

const defaultConfigPath = "./local/client.toml"

func main() {
	logs.Configure(logcfg.Load())

	args := argparse.NewParser("client", "Framed TCP file transfer shell")
	host := args.String("a", "address", &argparse.Options{Required: false, Help: "Server host name or address"})
	port := args.Int("p", "port", &argparse.Options{Required: false, Help: "Server port"})
	cfgPath := args.String("c", "config", &argparse.Options{Required: false, Help: "Client config file",
		Default: defaultConfigPath})
	remote := args.String("r", "remote", &argparse.Options{Required: false, Help: "Named remote from the config file"})
	downloadDir := args.String("o", "output", &argparse.Options{Required: false, Help: "Directory for downloaded files"})
	initConfig := args.Flag("i", "init-config", &argparse.Options{Help: "Write the effective config to the config path and exit"})

	if err := args.Parse(os.Args); err != nil {
		fmt.Print(args.Usage(err))
		os.Exit(1)
	}

	cfg, err := config.LoadClientConfig(*cfgPath)
	if err != nil {
		logs.Fatalf(err, "Failed to load config")
	}
	if *remote != "" {
		if err := cfg.UseRemote(*remote); err != nil {
			logs.Fatalf(err, "Failed to select remote")
		}
	}
	if *host != "" {
		cfg.Host = *host
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *downloadDir != "" {
		cfg.DownloadDir = *downloadDir
	}

	if *initConfig {
		if err := config.Save(*cfgPath, cfg); err != nil {
			logs.Fatalf(err, "Failed to write config")
		}
		logs.Infof("Wrote config to %s", *cfgPath)
		return
	}

	if err := cfg.Validate(); err != nil {
		fmt.Print(args.Usage(err))
		os.Exit(1)
	}

	client := newClient(cfg)

	var history *journal.Journal
	if cfg.JournalPath != "" {
		history, err = journal.Open(cfg.JournalPath)
		if err != nil {
			logs.Warnf("history disabled: %v", err)
		}
	}

	logs.Infof("Using server %s (one connection per command)", client.Addr())
	shell := NewShell(client, history, cfg.DestTag, os.Stdout)
	if err := shell.Run(os.Stdin); err != nil {
		logs.Fatalf(err, "Shell failed")
	}
}

func newClient(cfg config.ClientConfig) *protocol.Client {
	engine := protocol.NewEngine()
	engine.ChunkSize = cfg.ChunkSize
	engine.Order = cfg.Order()
	engine.Filter = policy.NewFilter(cfg.Extensions)
	engine.DownloadDir = cfg.DownloadDir
	engine.Progress = newProgressFunc(os.Stderr)

	return &protocol.Client{
		Host: cfg.Host,
		Port: cfg.Port,
		Dialer: &transport.Dialer{
			Timeout: cfg.DialTimeout.Duration,
			DSCP:    cfg.DSCP,
		},
		Engine: engine,
	}
}
