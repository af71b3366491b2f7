package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"trendscli/internal/app"
	"trendscli/pkg/contracts"
)

func main() {
	addr := flag.String("addr", "", "listen address (overrides config, e.g. :8090)")
	configPath := flag.String("config", "", "path to trends.yaml (defaults to ./trends.yaml)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(contracts.GetFullVersionString())
		return
	}

	application, err := app.NewApplication(app.Options{
		ConfigPath: *configPath,
		Addr:       *addr,
	})
	if err != nil {
		slog.Error("failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		application.Logger.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
