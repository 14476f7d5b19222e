package host

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Errors
var (
	ErrNotConnected    = errors.New("host not connected")
	ErrStaleConnection = errors.New("host connection stale (no ping)")
	ErrTimeout         = errors.New("host response timeout")
	ErrAlreadyClosed   = errors.New("host already closed")
	ErrRejected        = errors.New("host rejected launch")
)

// Command names understood by the host shell.
const (
	CmdLaunch          = "launch"
	CmdLaunchForResult = "launch_for_result"
)

// Response types sent back by the host shell.
const (
	TypeOK    = "ok"
	TypeError = "error"
)

// Command is a launch command sent to the host shell.
type Command struct {
	ID     uuid.UUID    `json:"id"`
	Cmd    string       `json:"cmd"`
	Params LaunchParams `json:"params"`
}

// LaunchParams describes the component to launch.
type LaunchParams struct {
	RequestID   string         `json:"request_id"`
	Path        string         `json:"path"`
	Group       string         `json:"group"`
	Target      string         `json:"target"`
	Kind        string         `json:"kind"`
	Params      map[string]any `json:"params,omitempty"`
	Flags       int            `json:"flags,omitempty"`
	Action      string         `json:"action,omitempty"`
	RequestCode int            `json:"request_code,omitempty"`
}

// Response is the host shell's answer to one command.
type Response struct {
	ID   uuid.UUID       `json:"id"`
	Type string          `json:"type"` // "ok" or "error"
	Msg  json.RawMessage `json:"msg,omitempty"`
}

// ErrorMsg is the message content for an "error" response.
type ErrorMsg struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Config configures a Remote host.
type Config struct {
	URL               string        // websocket URL of the host shell
	PingTimeout       time.Duration // max time without ping/pong before the connection is stale
	WriteTimeout      time.Duration // write deadline for commands
	ResponseTimeout   time.Duration // max wait for a command response
	HeartbeatInterval time.Duration // how often to ping the shell
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PingTimeout:       60 * time.Second,
		WriteTimeout:      5 * time.Second,
		ResponseTimeout:   10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PingTimeout <= 0 {
		c.PingTimeout = d.PingTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = d.ResponseTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	return c
}
