// Command echo runs a netloop.TcpServer that writes back whatever it
// reads, for exercising the reactor under load.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"netloop"
)

func main() {
	addr := flag.String("addr", ":9007", "listen address")
	numLoops := flag.Int("loops", 4, "worker event loop count")
	configPath := flag.String("config", "", "optional TOML/YAML config file, overrides -addr/-loops")
	flag.Parse()

	opts := netloop.Options{NumLoops: *numLoops}

	if *configPath != "" {
		cfg, err := netloop.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		netloop.SetLevel(netloop.ParseLevel(cfg.LogLevel))
		opts, err = cfg.ToOptions()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	} else {
		netloop.SetLevel(netloop.LevelInfo)
		listenAddr, err := netloop.ParseInetSocketAddress(*addr)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		opts.Addr = listenAddr
	}

	opts.OnMessage = func(conn *netloop.Connection, buf *netloop.ByteBuffer, _ netloop.Timestamp) {
		out := make([]byte, buf.Remaining())
		buf.Get(out)
		conn.Write(out)
	}

	server, err := netloop.NewTcpServer(opts)
	if err != nil {
		panic(err)
	}
	if err := server.Start(); err != nil {
		panic(err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	server.Stop()
}
