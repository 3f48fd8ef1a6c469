//go:build !linux

package main

import "errors"

func runDaemon(string) error {
	return errors.New("wlime requires Linux and a Wayland compositor")
}
