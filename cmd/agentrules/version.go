package main

import (
	"fmt"
	"runtime/debug"
)

// Set via -ldflags at release time.
var (
	version = "dev"
	commit  = ""
	date    = ""
)

func buildVersionString() string {
	v := version
	if v == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			v = info.Main.Version
		}
	}
	s := "agentrules " + v
	if commit != "" {
		s += fmt.Sprintf(" (%s", commit)
		if date != "" {
			s += ", " + date
		}
		s += ")"
	}
	return s
}
