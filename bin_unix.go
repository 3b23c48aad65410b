//go:build !windows

package main

const adbBinaryName = "adb"
