package nats

import "strings"

var toSubject = strings.NewReplacer("/", ".", "+", "*", "#", ">")

// Subject maps an MQTT topic or filter onto NATS subject syntax:
// "sensors/+/temp" becomes "sensors.*.temp" and "sensors/#" becomes "sensors.>".
func Subject(topic string) string {
	return toSubject.Replace(topic)
}

// Topic reverses Subject for a concrete subject.
func Topic(subject string) string {
	return strings.ReplaceAll(subject, ".", "/")
}

func isFilter(topic string) bool {
	return strings.ContainsAny(topic, "+#")
}
