package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every natsfixture topic.
const TopicPrefix = "natsfixture"

// Topics builds natsfixture topic names:
//
//	natsfixture/instance/<name>/<event type>   lifecycle events
//	natsfixture/instance/<name>/status         last known state, retained
//	natsfixture/fixture/<client id>/status     fixture process online/offline
type Topics struct{}

// InstanceEvent returns the topic for one lifecycle event type.
//
// Example: natsfixture/instance/nats/started
func (Topics) InstanceEvent(instance, eventType string) string {
	return fmt.Sprintf("%s/instance/%s/%s", TopicPrefix, instance, eventType)
}

// InstanceStatus returns the retained status topic of an instance.
//
// Example: natsfixture/instance/nats/status
func (Topics) InstanceStatus(instance string) string {
	return fmt.Sprintf("%s/instance/%s/status", TopicPrefix, instance)
}

// FixtureStatus returns the online/offline topic of a fixture process.
//
// Example: natsfixture/fixture/natsfixture-01/status
func (Topics) FixtureStatus(clientID string) string {
	return fmt.Sprintf("%s/fixture/%s/status", TopicPrefix, clientID)
}

// InstanceEvents matches every topic of one instance.
//
// Pattern: natsfixture/instance/nats/+
func (Topics) InstanceEvents(instance string) string {
	return fmt.Sprintf("%s/instance/%s/+", TopicPrefix, instance)
}

// AllInstanceEvents matches every instance topic.
//
// Pattern: natsfixture/instance/+/+
func (Topics) AllInstanceEvents() string {
	return TopicPrefix + "/instance/+/+"
}

// ParseInstanceTopic splits natsfixture/instance/<name>/<kind>.
func ParseInstanceTopic(topic string) (instance, kind string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefix || parts[1] != "instance" || parts[2] == "" || parts[3] == "" {
		return "", "", false
	}
	return parts[2], parts[3], true
}
