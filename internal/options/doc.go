// Package options holds the configuration model of a fixture instance.
//
// A closed registry of keys describes every server flag and every
// fixture-internal ("wrapper") setting. Values are merged from four layers
// with strictly increasing precedence:
//
//	DEFAULT < ENVIRONMENT < FILE < EXPLICIT
//
// A write from a lower layer never replaces a value from a higher one, so
// layers can be re-applied in any order and any number of times.
//
// # Usage
//
//	store := options.NewStore()
//	store.ApplyDefaults()
//	store.ApplyEnv(os.LookupEnv)              // NATS_PORT, NATS_VERSION, ...
//	props, err := options.LoadProperties("nats.properties")
//	if err == nil {
//	    err = store.ApplyFile(props)
//	}
//	store.SetExplicit(options.Port, "4333")
//
//	port, err := store.Int(options.Port)
//
// # Environment
//
// Server keys are read from NATS_<KEY>; wrapper keys already start with
// NATS_ and are read under their own name.
package options
