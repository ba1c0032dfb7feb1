// Command datetimeserver writes the current time to every connection the
// instant it is accepted, then closes it — a one-shot protocol useful for
// exercising Connection.Start/Write/Close without any read traffic at all.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"netloop"
)

func main() {
	addr := flag.String("addr", ":9008", "listen address")
	flag.Parse()

	netloop.SetLevel(netloop.LevelInfo)

	listenAddr, err := netloop.ParseInetSocketAddress(*addr)
	if err != nil {
		os.Exit(1)
	}

	server, err := netloop.NewTcpServer(netloop.Options{
		Addr:     listenAddr,
		NumLoops: 1,
		OnConnected: func(conn *netloop.Connection) {
			conn.Write([]byte(time.Now().UTC().Format(time.RFC3339) + "\n"))
			conn.Close()
		},
	})
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
