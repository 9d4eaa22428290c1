package schema

import (
	"fmt"

	"github.com/danmuck/scopectl/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

// Message kind IDs. Every command payload, response and event body is one kind.
const (
	MsgDefault          uint32 = 1
	MsgRuntimeSelection uint32 = 2
	MsgRuntimeList      uint32 = 3
	MsgRuntimeInfo      uint32 = 4
	MsgRuntimeID        uint32 = 5
	MsgEvalData         uint32 = 6
	MsgVariable         uint32 = 7
	MsgEvalResult       uint32 = 8
	MsgObjectValue      uint32 = 9
	MsgExamineList      uint32 = 10
	MsgObjectList       uint32 = 11
	MsgObjectInfo       uint32 = 12
	MsgProperty         uint32 = 13
	MsgConfiguration    uint32 = 14
	MsgWindowID         uint32 = 15
	MsgWindowInfo       uint32 = 16
	MsgWindowList       uint32 = 17
	MsgError            uint32 = 18
)

// Field IDs from the scope tlv contract.
const (
	FieldRuntimeID  uint16 = 1
	FieldWindowID   uint16 = 2
	FieldFramePath  uint16 = 3
	FieldURI        uint16 = 4
	FieldObjectID   uint16 = 5
	FieldOpenerID   uint16 = 6
	FieldTitle      uint16 = 7
	FieldWindowType uint16 = 8

	FieldAllRuntimes uint16 = 10
	FieldRuntime     uint16 = 11
	FieldWindow      uint16 = 12

	FieldThreadID   uint16 = 20
	FieldFrameIndex uint16 = 21
	FieldScriptData uint16 = 22
	FieldVariable   uint16 = 23
	FieldName       uint16 = 24

	FieldStatus      uint16 = 30
	FieldType        uint16 = 31
	FieldValue       uint16 = 32
	FieldObjectValue uint16 = 33
	FieldClassName   uint16 = 34

	FieldObjectInfo uint16 = 40
	FieldProperty   uint16 = 41

	FieldStopAtScript            uint16 = 50
	FieldStopAtException         uint16 = 51
	FieldStopAtError             uint16 = 52
	FieldStopAtAbort             uint16 = 53
	FieldStopAtGC                uint16 = 54
	FieldStopAtDebuggerStatement uint16 = 55

	FieldErrorMessage uint16 = 60
)

type Requirement struct {
	ID   uint16
	Type uint8
}

type ValidationError struct {
	MessageType uint32
	FieldID     uint16
	Reason      string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("schema: message_type=%d: %s", e.MessageType, e.Reason)
	}
	return fmt.Sprintf("schema: message_type=%d field=%d: %s", e.MessageType, e.FieldID, e.Reason)
}

var requirements = map[uint32][]Requirement{
	MsgDefault:          {},
	MsgRuntimeSelection: {},
	MsgRuntimeList:      {},
	MsgRuntimeInfo: {
		{FieldRuntimeID, tlv.TypeU32},
		{FieldWindowID, tlv.TypeU32},
		{FieldFramePath, tlv.TypeString},
	},
	MsgRuntimeID: {
		{FieldRuntimeID, tlv.TypeU32},
	},
	MsgEvalData: {
		{FieldRuntimeID, tlv.TypeU32},
		{FieldScriptData, tlv.TypeString},
	},
	MsgVariable: {
		{FieldName, tlv.TypeString},
		{FieldObjectID, tlv.TypeU32},
	},
	MsgEvalResult: {
		{FieldStatus, tlv.TypeString},
	},
	MsgObjectValue: {
		{FieldObjectID, tlv.TypeU32},
	},
	MsgExamineList: {
		{FieldRuntimeID, tlv.TypeU32},
	},
	MsgObjectList: {},
	MsgObjectInfo: {
		{FieldObjectValue, tlv.TypeMessage},
	},
	MsgProperty: {
		{FieldName, tlv.TypeString},
		{FieldType, tlv.TypeString},
	},
	MsgConfiguration: {},
	MsgWindowID: {
		{FieldWindowID, tlv.TypeU32},
	},
	MsgWindowInfo: {
		{FieldWindowID, tlv.TypeU32},
	},
	MsgWindowList: {},
	MsgError: {
		{FieldErrorMessage, tlv.TypeString},
	},
}

// Validate enforces required fields and required field types for a message type.
// Unknown fields are ignored.
func Validate(messageType uint32, fields []tlv.Field) error {
	reqs, ok := requirements[messageType]
	if !ok {
		log.Error().Uint32("message_type", messageType).Msg("schema.Validate unknown message_type")
		return ValidationError{MessageType: messageType, Reason: "unknown message_type"}
	}
	for _, req := range reqs {
		f, found := tlv.GetField(fields, req.ID)
		if !found {
			log.Debug().
				Uint32("message_type", messageType).
				Uint16("field_id", req.ID).
				Msg("schema.Validate missing field")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "missing required field"}
		}
		if f.Type != req.Type {
			log.Debug().
				Uint32("message_type", messageType).
				Uint16("field_id", req.ID).
				Uint8("got", f.Type).
				Uint8("want", req.Type).
				Msg("schema.Validate type mismatch")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "type mismatch"}
		}
	}
	return nil
}
