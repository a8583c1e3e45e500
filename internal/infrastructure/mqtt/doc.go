// Package mqtt connects the station to the line's MQTT broker.
//
// The sequencer publishes progress, stage reports and retained slot
// verdicts, and listens for operation requests from the line controller.
// A Last Will marks the station offline if the process dies.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Station.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.SlotResult(cfg.Station.ID, 3, 2)
//	client.PublishRetained(topic, payload)
package mqtt
