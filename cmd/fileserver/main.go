package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/akamensky/argparse"
	"github.com/danmuck/s25_files/cmd/internal/logcfg"
	"github.com/danmuck/s25_files/src/api/transport"
	"github.com/danmuck/s25_files/src/config"
	logs "github.com/danmuck/smplog"
)

const defaultConfigPath = "./local/fileserver.toml"

func main() {
	logs.Configure(logcfg.Load())

	args := argparse.NewParser("fileserver", "Reference server for the framed file transfer protocol")
	listen := args.String("l", "listen", &argparse.Options{Required: false, Help: "TCP listen address"})
	root := args.String("r", "root", &argparse.Options{Required: false, Help: "Directory served as ~/S1"})
	cfgPath := args.String("c", "config", &argparse.Options{Required: false, Help: "Server config file",
		Default: defaultConfigPath})

	if err := args.Parse(os.Args); err != nil {
		fmt.Print(args.Usage(err))
		os.Exit(1)
	}

	cfg, err := config.LoadServerConfig(*cfgPath)
	if err != nil {
		logs.Fatalf(err, "failed to load config")
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *root != "" {
		cfg.Root = *root
	}
	if err := cfg.Validate(); err != nil {
		fmt.Print(args.Usage(err))
		os.Exit(1)
	}

	srv, err := NewServer(cfg.Root, cfg.Order(), cfg.ChunkSize)
	if err != nil {
		logs.Fatalf(err, "failed to prepare root")
	}

	exit := make(chan any)
	h := transport.NewTCPHandler(cfg.Listen, srv.handleConn, exit)
	if err := h.ListenAndAccept(); err != nil {
		logs.Fatalf(err, "failed to listen")
	}
	logs.Infof("file server listening on %s (root: %s, byte order: %s)", h.Addr(), srv.Root(), cfg.Order())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logs.Infof("shutting down")
	close(exit)
	if err := h.Close(); err != nil {
		logs.Errorf(err, "shutdown error")
	}
}
