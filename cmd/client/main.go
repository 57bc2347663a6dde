// Command chatcli connects the terminal to a chat server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"github.com/Tyrowin/roomchat/internal/client"
)

func main() {
	app := cli.NewApp()
	app.Name = "chatcli"
	app.Usage = "Join a chat room from the terminal"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "address, a",
			Usage: "Address of the chat server",
			Value: "localhost:5555",
		},
		cli.DurationFlag{
			Name:  "timeout, t",
			Usage: "How long to wait for the connection",
			Value: 10 * time.Second,
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Printf("Error: %s\n", err.Error())
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	conn, err := net.DialTimeout("tcp", c.String("address"), c.Duration("timeout"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = client.Relay(ctx, conn, os.Stdin, os.Stdout)
	switch {
	case errors.Is(err, client.ErrDisconnected):
		fmt.Fprintln(os.Stderr, "Disconnected from the server")
		return nil
	case errors.Is(err, context.Canceled):
		return nil
	}
	return err
}
