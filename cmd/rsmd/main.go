// Command rsmd boots the RSM runtime with no components registered; it
// does not load components from anywhere. It exercises the runtime's
// init/start/shutdown sequence standalone.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wang-russell/rsm"
	"github.com/wang-russell/rsm/internal/logging"
)

func main() {
	var (
		nodeID   = flag.Uint("node-id", 1, "node_id used in this process's identity triples")
		maxComp  = flag.Int("max-components", 256, "table sizing hint for the component registry")
		verbose  = flag.Bool("v", false, "verbose (debug) logging")
		diagTick = flag.Duration("diag-interval", 0, "if nonzero, log a timer diagnostic snapshot at this interval")
	)
	flag.Parse()

	level := logging.LevelInfo
	if *verbose {
		level = logging.LevelDebug
	}

	cfg := rsm.DefaultInitConfig()
	cfg.NodeID = uint32(*nodeID)
	cfg.MaxComponentNum = *maxComp
	cfg.LogConfig.Level = level

	if err := rsm.Init(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "rsmd: init failed: %v\n", err)
		os.Exit(1)
	}

	if err := rsm.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "rsmd: start failed: %v\n", err)
		os.Exit(1)
	}
	logging.Info("rsm runtime started", "node_id", *nodeID)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	var diagDone chan struct{}
	if *diagTick > 0 {
		diagDone = make(chan struct{})
		go runDiagLoop(*diagTick, diagDone)
	}

	<-stop
	logging.Info("rsmd: shutdown signal received")
	if diagDone != nil {
		close(diagDone)
	}
	rsm.Shutdown()
	logging.Info("rsmd: runtime stopped")
}

func runDiagLoop(interval time.Duration, done chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			raw, err := rsm.DiagQuery("timer")
			if err != nil {
				continue
			}
			logging.Info("timer diagnostic", "snapshot", string(raw))
		}
	}
}
