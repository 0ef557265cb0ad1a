package main

import "fmt"

var (
	gitSHA1   string = "unknown"
	gitDirty  string = "unknown"
	buildDate string = "unknown"
	version   string = "0.1.0"
)

// Version is set through -ldflags "-X main.gitSHA1=..." at build time.
func Version() string {
	v := version
	if gitSHA1 != "unknown" {
		v = fmt.Sprintf("%s (git:%s", v, gitSHA1)
		if gitDirty != "unknown" && gitDirty != "0" {
			v += "-dirty"
		}
		v += ")"
	}
	if buildDate != "unknown" {
		v = fmt.Sprintf("%s built %s", v, buildDate)
	}
	return v
}
