// Command datetime connects to a datetimeserver instance via
// netloop.Connector and prints whatever it receives before the peer
// closes the connection.
package main

import (
	"flag"
	"fmt"
	"os"

	"netloop"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9008", "server address")
	flag.Parse()

	netloop.SetLevel(netloop.LevelInfo)

	serverAddr, err := netloop.ParseInetSocketAddress(*addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	loop, err := netloop.NewEventLoop("client")
	if err != nil {
		panic(err)
	}

	done := make(chan struct{})
	connector := netloop.NewConnector(loop, serverAddr, false)
	connector.NewConnCallback = func(fd int, local, peer netloop.InetSocketAddress) {
		conn := netloop.NewConnection(loop, fd, local, peer)
		conn.SetCallbacks(
			nil,
			func(c *netloop.Connection, buf *netloop.ByteBuffer, _ netloop.Timestamp) {
				out := make([]byte, buf.Remaining())
				buf.Get(out)
				fmt.Print(string(out))
			},
			func(*netloop.Connection) {
				loop.Stop()
				close(done)
			},
			func(_ *netloop.Connection, err error) {
				fmt.Fprintln(os.Stderr, err)
			},
		)
		conn.Start()
	}

	go func() {
		if err := loop.Run(); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}()
	loop.Post(connector.Start)
	<-done
}
