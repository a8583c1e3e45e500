// Package routine implements the DUT-side test routines: chip ID readout
// through the railtest shell and the accelerometer and radio tests run by
// external tools.
package routine
