package schema

import "fmt"

// Service is a scope service id as carried in the frame header.
type Service uint16

const (
	ServiceEcmascriptDebugger Service = 1
	ServiceWindowManager      Service = 2
)

func (s Service) String() string {
	switch s {
	case ServiceEcmascriptDebugger:
		return "ecmascript-debugger"
	case ServiceWindowManager:
		return "window-manager"
	default:
		return fmt.Sprintf("service(%d)", uint16(s))
	}
}

// Command enumerates every command and event this client speaks.
type Command int

const (
	CmdUnknown Command = iota

	CmdListRuntimes
	CmdEval
	CmdExamineObjects
	CmdSetConfiguration
	CmdReleaseObjects
	EvtRuntimeStarted
	EvtRuntimeStopped

	CmdGetActiveWindow
	CmdListWindows
	EvtWindowUpdated
	EvtWindowClosed
	EvtWindowActivated
)

// Binding ties a command to its wire id and the one request/response codec pair
// allowed for it. Events only carry a Response kind.
type Binding struct {
	Name     string
	Service  Service
	ID       uint16
	Request  uint32
	Response uint32
	Event    bool
}

var bindings = map[Command]Binding{
	CmdListRuntimes:     {"ListRuntimes", ServiceEcmascriptDebugger, 1, MsgRuntimeSelection, MsgRuntimeList, false},
	CmdEval:             {"Eval", ServiceEcmascriptDebugger, 3, MsgEvalData, MsgEvalResult, false},
	CmdExamineObjects:   {"ExamineObjects", ServiceEcmascriptDebugger, 4, MsgExamineList, MsgObjectList, false},
	CmdSetConfiguration: {"SetConfiguration", ServiceEcmascriptDebugger, 10, MsgConfiguration, MsgDefault, false},
	EvtRuntimeStarted:   {"OnRuntimeStarted", ServiceEcmascriptDebugger, 14, 0, MsgRuntimeInfo, true},
	EvtRuntimeStopped:   {"OnRuntimeStopped", ServiceEcmascriptDebugger, 15, 0, MsgRuntimeID, true},
	CmdReleaseObjects:   {"ReleaseObjects", ServiceEcmascriptDebugger, 29, MsgDefault, MsgDefault, false},

	CmdGetActiveWindow: {"GetActiveWindow", ServiceWindowManager, 1, MsgDefault, MsgWindowID, false},
	CmdListWindows:     {"ListWindows", ServiceWindowManager, 2, MsgDefault, MsgWindowList, false},
	EvtWindowUpdated:   {"OnWindowUpdated", ServiceWindowManager, 4, 0, MsgWindowInfo, true},
	EvtWindowClosed:    {"OnWindowClosed", ServiceWindowManager, 5, 0, MsgWindowID, true},
	EvtWindowActivated: {"OnWindowActivated", ServiceWindowManager, 6, 0, MsgWindowID, true},
}

// wire index for decoding incoming frames.
var byWire = func() map[Service]map[uint16]Command {
	out := make(map[Service]map[uint16]Command)
	for cmd, b := range bindings {
		if out[b.Service] == nil {
			out[b.Service] = make(map[uint16]Command)
		}
		out[b.Service][b.ID] = cmd
	}
	return out
}()

// Bind returns the binding for cmd.
func (c Command) Bind() (Binding, bool) {
	b, ok := bindings[c]
	return b, ok
}

func (c Command) String() string {
	if b, ok := bindings[c]; ok {
		return b.Service.String() + "." + b.Name
	}
	return fmt.Sprintf("command(%d)", int(c))
}

// Lookup maps a header service/command pair back to a Command.
func Lookup(service Service, id uint16) (Command, bool) {
	cmd, ok := byWire[service][id]
	return cmd, ok
}
