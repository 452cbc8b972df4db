// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad
//
// pdslink - PDS board link tool
//
// A CLI tool for commanding a satellite PDS board over I2C, decoding its
// framed protocol, and simulating the board firmware on the host.

package main

import (
	"flag"
	"os"

	"github.com/golang/glog"

	"github.com/Thermoquad/pdslink/cmd"
)

func main() {
	// glog writes to files by default; a CLI wants stderr
	_ = flag.Set("logtostderr", "true")
	// cobra parses the flags; mark the standard set parsed for glog
	_ = flag.CommandLine.Parse(nil)

	err := cmd.Execute()
	glog.Flush()
	if err != nil {
		os.Exit(1)
	}
}
