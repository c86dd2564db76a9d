package ipc

// Commands accepted over the control channel.
const (
	CommandStart    = "start"
	CommandRun      = "run"
	CommandStop     = "stop"
	CommandCancel   = "cancel"
	CommandStatus   = "status"
	CommandShutdown = "shutdown"
)

type Request struct {
	Command string         `json:"command"`
	Payload map[string]any `json:"payload,omitempty"`
}

type Response struct {
	OK     bool           `json:"ok"`
	State  string         `json:"state,omitempty"`
	Result map[string]any `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}
