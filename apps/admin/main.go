package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/trezcool/vitrine/apps/shared"
	"github.com/trezcool/vitrine/core"
	logsvc "github.com/trezcool/vitrine/services/logger"
)

func main() {
	conf := core.NewConfig()
	ctx := context.Background()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// schema changes go through the migrate command
	store, err := shared.OpenStorage(ctx, conf, false /* migrate */)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up storage: %v", err), err)
	}

	// start CLI
	cli := newCommandLine(store.DB, store.Repo)
	err = cli.run(ctx, os.Args)
	if cErr := store.Close(ctx); cErr != nil {
		logger.Error("Failed to close storage", cErr)
	}
	if err != nil {
		if err != errHelp && err != errDiffers {
			logger.Error(fmt.Sprintf("error: %v", err))
		}
		os.Exit(1)
	}
}
