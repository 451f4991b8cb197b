package control

import (
	"time"

	compositor "github.com/e7canasta/chroma-compositor"
)

// Command names accepted on the control topic.
const (
	CmdGetStatus     = "get_status"
	CmdSetOptions    = "set_options"
	CmdUpdateConfig  = "update_config"
	CmdResetOptions  = "reset_options"
	CmdEnableKeying  = "enable_keying"
	CmdDisableKeying = "disable_keying"
	CmdShutdown      = "shutdown"
)

// Response status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Command is a control plane request.
//
//	{"command": "set_options", "params": {"whiteThreshold": 0.9}}
type Command struct {
	Command   string                 `json:"command" msgpack:"command"`
	RequestID string                 `json:"request_id,omitempty" msgpack:"request_id,omitempty"`
	Config    map[string]interface{} `json:"config,omitempty" msgpack:"config,omitempty"`
	Params    map[string]interface{} `json:"params,omitempty" msgpack:"params,omitempty"`
}

// Response acknowledges a command on the responses topic.
type Response struct {
	RequestID  string                 `json:"request_id" msgpack:"request_id"`
	CommandAck string                 `json:"command_ack" msgpack:"command_ack"`
	Status     string                 `json:"status" msgpack:"status"`
	Data       map[string]interface{} `json:"data,omitempty" msgpack:"data,omitempty"`
	Error      string                 `json:"error,omitempty" msgpack:"error,omitempty"`
	Timestamp  string                 `json:"timestamp" msgpack:"timestamp"`
}

// StatusMessage is published on the status topic. The session status fields
// ({isProcessing, error, frameRate, ...}) are inlined at the top level.
type StatusMessage struct {
	compositor.Status `msgpack:",inline"`

	InstanceID string    `json:"instance_id" msgpack:"instance_id"`
	Seq        uint64    `json:"seq" msgpack:"seq"`
	SentAt     time.Time `json:"sent_at" msgpack:"sent_at"`
}
