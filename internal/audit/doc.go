// Package audit records operator actions on the station.
//
// Every operation start and every session start is written to the
// audit_logs table together with where it came from (API, MQTT or the
// command line), so a batch can be traced back to who ran what and when.
package audit
