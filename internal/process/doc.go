// Package process runs a single child process from start to exit.
//
// The child gets its own process group so that Stop can reach anything it
// spawns. Output is read line by line and handed to callbacks; a process
// that exits on its own is reported through OnExit and is not restarted.
//
// Example usage:
//
//	mgr := process.NewManager(process.Config{
//	    Name:     "nats",
//	    Binary:   "/tmp/nats/nats-server",
//	    Args:     []string{"--port=4222"},
//	    OnStderr: func(line string) { log.Warn(line) },
//	})
//
//	if err := mgr.Start(); err != nil {
//	    return err
//	}
//	defer mgr.Stop()
package process
