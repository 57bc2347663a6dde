// Command chatsrv runs the chat room server.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"github.com/Tyrowin/roomchat/internal/server"
)

func main() {
	app := cli.NewApp()
	app.Name = "chatsrv"
	app.Usage = "Text chat room over TCP and WebSocket"
	app.Flags = server.Flags()
	app.Action = serve

	if err := app.Run(os.Args); err != nil {
		fmt.Printf("Error: %s\n", err.Error())
		os.Exit(1)
	}
}

// loadConfig layers defaults, the optional TOML file, CHAT_* variables and
// explicit flags, in that order.
func loadConfig(c *cli.Context) (*server.Config, error) {
	cfg := server.NewConfig()
	if filename := c.String("config"); filename != "" {
		if err := cfg.LoadFromFile(filename); err != nil {
			return nil, err
		}
	}
	cfg.LoadFromEnv()
	cfg.LoadFromContext(c)
	return cfg, nil
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	log := server.NewLogger(os.Stdout, cfg.Debug)
	log.WithField("address", cfg.Address).Info("Starting chat server...")

	srv, err := server.New(*cfg, log)
	if err != nil {
		return err
	}

	errs := make(chan error, 1)
	go func() {
		errs <- srv.ListenAndServe()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case err := <-errs:
		return err
	case s := <-sig:
		log.Infof("Got %s, stopping", s)
	}

	if err := srv.Shutdown(); err != nil {
		log.WithError(err).Warn("Shutdown did not complete cleanly")
	}
	if err := <-errs; err != nil {
		return err
	}
	log.Info("Chat server stopped")
	return nil
}
