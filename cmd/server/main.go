package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/dmitrijs2005/weavesync/internal/server"
	"github.com/dmitrijs2005/weavesync/internal/server/config"
	"golang.org/x/term"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := server.NewApp(cfg)

	if err != nil {
		log.Printf("%v", err)
		return
	}

	if cfg.Register != "" {
		uid, err := app.Register(ctx, cfg.Register, promptPassword)
		_ = app.Close()
		if err != nil {
			log.Printf("register: %v", err)
			os.Exit(1)
		}
		fmt.Printf("registered %s\n", uid)
		return
	}

	app.Run(ctx)

}

func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Password: ")
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
