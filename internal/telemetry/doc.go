// Package telemetry forwards sequencer activity to the plant's MQTT broker
// and InfluxDB, and accepts operation requests over MQTT.
//
// MQTTObserver and InfluxObserver implement sequencer.Observer. The MQTT
// observer queues messages and publishes them from its own goroutine
// because a broker acknowledgement can take seconds, and observers must
// not stall the sequencer. InfluxDB writes go through the client's
// asynchronous batch writer and are made inline.
//
// CommandListener subscribes to fixture/{station}/command/+ and starts the
// named operation:
//
//	mosquitto_pub -t fixture/station-01/command/full-cycle -m ''
package telemetry
