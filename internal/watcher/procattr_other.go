//go:build !unix && !windows

package watcher

import "os/exec"

func detach(*exec.Cmd) {}
