// Package main starts the classroom real-time service and handles
// termination.
//
// The process is a transport adapter around the live session coordinator so
// poll and roster state stays owned by the session domain.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	classroomcmd "github.com/louisbranch/classpulse/internal/cmd/classroom"
)

func main() {
	cfg, err := classroomcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[CLASSROOM] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := classroomcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
