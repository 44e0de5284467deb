package syncclient

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/twmsh/fy-admin/go/timefmt"
)

// Task kinds.
const (
	TaskSyncTimer = iota
	TaskHeartBeat
	TaskServerCmd
)

// Server command sub-types.
const (
	CmdSync = iota
	CmdReset
	CmdReboot
)

// TaskItem is one unit of work for the sync worker: a timer tick or a
// server command.
type TaskItem struct {
	Kind int
	Cmd  int
	Msg  *CommandMessage
}

// CommandMessage is the inbound broker command payload.
type CommandMessage struct {
	ID      string       `json:"id"`
	Type    string       `json:"type"`
	Payload string       `json:"payload"`
	HwID    string       `json:"hw_id"`
	TS      timefmt.Time `json:"ts"`
}

// ParseCommand decodes a broker delivery into a task. hwID is this box;
// a message stamped with our own non-empty hardware id is an echo of
// something we published and is dropped.
func ParseCommand(body []byte, hwID string) (*TaskItem, error) {
	var msg CommandMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("parsing command: %w", err)
	}
	if msg.HwID != "" && strings.EqualFold(msg.HwID, hwID) {
		return nil, nil
	}

	var cmd int
	switch msg.Type {
	case "sync":
		cmd = CmdSync
	case "reset":
		cmd = CmdReset
	case "reboot":
		cmd = CmdReboot
	default:
		return nil, fmt.Errorf("unknown command type %q", msg.Type)
	}
	return &TaskItem{Kind: TaskServerCmd, Cmd: cmd, Msg: &msg}, nil
}

// StatusCamera is one camera in the heartbeat payload. CType is the capture
// kind bitmask: 1 face, 2 vehicle.
type StatusCamera struct {
	UUID  string `json:"uuid"`
	URL   string `json:"url"`
	CType int64  `json:"c_type"`
}

type StatusDb struct {
	UUID     string `json:"uuid"`
	Capacity int64  `json:"capacity"`
	Used     int64  `json:"used"`
}

// StatusPayload is the heartbeat body, serialized into BoxLogMessage.Payload.
type StatusPayload struct {
	Cameras []StatusCamera `json:"cameras"`
	Dbs     []StatusDb     `json:"dbs"`
}
