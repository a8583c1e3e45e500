// Package influxdb stores the station's measurement history in InfluxDB.
//
// Every raw instrument reading taken by a check (detection ADC, AIN voltage,
// supply current) and every final DUT verdict is written as a point tagged
// with station, board and slot, so drift in the fixture or the product shows
// up across batches.
//
// InfluxDB is optional: Connect returns ErrDisabled when influxdb.enabled is
// false and the caller runs without history.
package influxdb
