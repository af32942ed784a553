// Package supervisor runs one NATS server instance for the lifetime of a
// test or a local stack.
//
// A Supervisor owns the layered options of its instance, makes sure the
// server binary is present, launches it with a rendered command line and
// waits for the client port to accept connections. Stop asks the server to
// shut down through its own signal subcommand, terminates the process
// group, waits for the port to be released and removes the PID file.
//
// # Lifecycle
//
//	stopped -> starting -> running -> stopping -> stopped
//	              |
//	              +-> stopped (start failed, process cleaned up)
//
// # Ports
//
// A port of zero or less selects the first free port above 4222. Ports
// picked this way are reserved inside the process, so StartAll can launch
// several instances in parallel without collisions.
//
// # Files
//
//	<tmp>/<name>/<port>.pid                          PID file
//	<tmp>/<name>/<name>-server-<version>-<system>   default binary path
//
// Example usage:
//
//	sup, err := supervisor.New(supervisor.Config{
//	    Options: map[string]string{"PORT": "-1", "JETSTREAM": "true"},
//	})
//	if err != nil {
//	    return err
//	}
//	if err := sup.Start(ctx); err != nil {
//	    return err
//	}
//	defer sup.Stop()
//
//	nc, err := nats.Connect(sup.URL())
package supervisor
