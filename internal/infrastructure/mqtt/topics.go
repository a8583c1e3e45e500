package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every topic the sequencer publishes.
const TopicPrefix = "fixture"

// Topics provides builders for the station topic tree:
//
//	fixture/{station}/status                      retained online/offline
//	fixture/{station}/progress                    operator progress messages
//	fixture/{station}/stage                       stage reports
//	fixture/{station}/slot/{board}/{slot}/result  retained slot verdicts
//	fixture/{station}/command/{operation}         operation requests
type Topics struct{}

// StationStatus returns the retained online/offline topic.
func (Topics) StationStatus(station string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefix, station)
}

// Progress returns the topic for progress messages.
func (Topics) Progress(station string) string {
	return fmt.Sprintf("%s/%s/progress", TopicPrefix, station)
}

// Stage returns the topic for stage reports.
func (Topics) Stage(station string) string {
	return fmt.Sprintf("%s/%s/stage", TopicPrefix, station)
}

// SlotResult returns the retained verdict topic of one slot.
//
// Example: fixture/station-01/slot/3/2/result
func (Topics) SlotResult(station string, board, slot int) string {
	return fmt.Sprintf("%s/%s/slot/%d/%d/result", TopicPrefix, station, board, slot)
}

// Command returns the topic used to request operation on the station.
func (Topics) Command(station, operation string) string {
	return fmt.Sprintf("%s/%s/command/%s", TopicPrefix, station, operation)
}

// AllCommands returns the wildcard matching every command of the station.
func (Topics) AllCommands(station string) string {
	return fmt.Sprintf("%s/%s/command/+", TopicPrefix, station)
}

// CommandOperation extracts the operation name from a command topic.
// It returns false when topic is not a command topic of station.
func (Topics) CommandOperation(station, topic string) (string, bool) {
	prefix := fmt.Sprintf("%s/%s/command/", TopicPrefix, station)
	op, ok := strings.CutPrefix(topic, prefix)
	if !ok || op == "" || strings.Contains(op, "/") {
		return "", false
	}
	return op, true
}
