package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/matheus3301/chatvault/internal/config"
	"github.com/matheus3301/chatvault/internal/daemon"
)

func main() {
	configFlag := flag.String("config", "chatvault.toml", "path to the config file")
	accountFlag := flag.String("account", "", "account id (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "error: load config: %v\n", err)
			os.Exit(1)
		}
		cfg = config.Default()
	}
	if *accountFlag != "" {
		cfg.AccountID = *accountFlag
	}
	if cfg.AccountID == "" {
		fmt.Fprintln(os.Stderr, "error: account id required (flag -account or config account_id)")
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{Config: cfg}),
	)

	app.Run()
}
