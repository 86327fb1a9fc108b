package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ruteri/account-generator/cmdline"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	parser := cmdline.NewParser(os.Stdout, os.Stderr)
	parser.RegisterGenerator(cmdline.FileBasedCommand{})
	parser.RegisterGenerator(cmdline.HSMBasedCommand{})

	code := parser.Parse(ctx, os.Args[1:]...)
	stop()
	os.Exit(code)
}
