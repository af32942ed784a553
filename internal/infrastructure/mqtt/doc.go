// Package mqtt publishes fixture lifecycle events to an MQTT broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect after the first connect
//   - Publishing with QoS and retained status topics
//   - Subscriptions with wildcard support, restored on reconnect
//   - A Last Will so subscribers see a fixture that died without stopping
//   - Clearing the retained instance topics it wrote on a graceful Close
//
// # Topics
//
//	natsfixture/instance/<name>/<event type>
//	natsfixture/instance/<name>/status        (retained)
//	natsfixture/fixture/<client id>/status    (retained, LWT)
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllInstanceEvents(), 1,
//	    func(topic string, payload []byte) error {
//	        fmt.Printf("%s %s\n", topic, payload)
//	        return nil
//	    })
package mqtt
