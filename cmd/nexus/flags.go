package main

import "time"

// GlobalFlags holds the persistent flags shared by every command
type GlobalFlags struct {
	ConfigPath string
	Output     string
}

// RemoteFlags holds daemon connection flags
type RemoteFlags struct {
	APIUrl     string
	APITimeout time.Duration
	Insecure   bool
	CACert     string
	Username   string
	Password   string
}

// SimulateFlags holds flags for the simulate command
type SimulateFlags struct {
	Cycles   int
	Interval time.Duration
	Allocate bool
}

// ShellFlags holds flags for the shell command
type ShellFlags struct {
	Simulate bool
}

// SpawnFlags holds flags for the spawn command
type SpawnFlags struct {
	Name     string
	Priority int
	Memory   int
	Allocate bool
}

// KillFlags holds flags for the kill command
type KillFlags struct {
	PID     int
	Reclaim bool
}

// TickFlags holds flags for the tick command
type TickFlags struct {
	Count int
}
