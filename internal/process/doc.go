// Package process runs external tools to completion.
//
// The station shells out to J-Link Commander for programming and to vendor
// utilities for the radio and accelerometer tests. Runner starts each tool
// in its own process group, logs its output line by line, enforces a
// timeout and reports the exit code.
//
// Example usage:
//
//	runner := process.NewRunner()
//	res, err := runner.Run(ctx, process.Config{
//	    Name:    "jlink",
//	    Binary:  "JLinkExe",
//	    Args:    []string{"-NoGui", "1", "-CommandFile", script},
//	    Timeout: time.Minute,
//	})
package process
