// Package programmer defines the debug-probe contract used to program DUTs
// and provides a J-Link Commander implementation.
package programmer
