// Pulse node daemon.
//
// Usage:
//
//	pulsed [--port 8080 --data-dir ~/.pulse]   Run a persistent node
//	pulsed --simulate                          Run in-memory with fake devices
//	pulsed --help                              Show help
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pulse-net/pulse-chain/config"
	"github.com/pulse-net/pulse-chain/internal/node"
)

const version = "0.3.0"

func main() {
	cfg, flags, err := config.Load()
	if flags != nil && flags.Help {
		config.Usage()
		return
	}
	if flags != nil && flags.Version {
		fmt.Printf("pulsed %s\n", version)
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	n, err := node.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := n.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		n.Stop()
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	n.Stop()
}
