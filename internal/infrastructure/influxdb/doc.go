// Package influxdb writes fixture lifecycle points to InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library: Connect pings the
// server, writes go through the non-blocking batched write API and failures
// are reported asynchronously through SetOnError. Stats counts queued,
// failed and dropped points so a shutdown can report what was lost.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WritePoint("fixture_lifecycle",
//	    map[string]string{"instance": "nats", "type": "started"},
//	    map[string]interface{}{"port": 4222})
package influxdb
