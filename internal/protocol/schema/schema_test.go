package schema

import (
	"errors"
	"testing"

	"github.com/danmuck/scopectl/internal/protocol/tlv"
	"github.com/danmuck/scopectl/internal/testutil/testlog"
)

func TestValidateRuntimeInfoRequiredFields(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{
		tlv.U32(FieldRuntimeID, 3),
		tlv.U32(FieldWindowID, 1),
		tlv.String(FieldFramePath, "_top"),
	}
	if err := Validate(MsgRuntimeInfo, fields); err != nil {
		t.Fatalf("validate runtime info: %v", err)
	}
}

func TestValidateUnknownFieldsIgnored(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{
		tlv.U32(FieldRuntimeID, 3),
		tlv.String(FieldScriptData, "return 1;"),
		{ID: 9999, Type: tlv.TypeBytes, Value: []byte{0x01}},
	}
	if err := Validate(MsgEvalData, fields); err != nil {
		t.Fatalf("validate with unknown field: %v", err)
	}
}

func TestValidateMissingRequiredDeterministic(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{tlv.U32(FieldRuntimeID, 3)}
	err := Validate(MsgRuntimeInfo, fields)
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if ve.FieldID != FieldWindowID || ve.Reason != "missing required field" {
		t.Fatalf("unexpected validation error: %+v", ve)
	}
}

func TestValidateTypeMismatchDeterministic(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{tlv.String(FieldStatus, "completed"), tlv.U32(FieldType, 1)}
	if err := Validate(MsgEvalResult, fields); err != nil {
		t.Fatalf("type is optional for eval result: %v", err)
	}
	fields = []tlv.Field{tlv.U32(FieldStatus, 1)}
	var ve ValidationError
	if !errors.As(Validate(MsgEvalResult, fields), &ve) || ve.Reason != "type mismatch" {
		t.Fatalf("expected type mismatch, got %+v", ve)
	}
}

func TestValidateUnknownMessageType(t *testing.T) {
	testlog.Start(t)
	var ve ValidationError
	if !errors.As(Validate(999, nil), &ve) || ve.FieldID != 0 {
		t.Fatalf("expected unknown message_type error, got %+v", ve)
	}
}

func TestCommandBindingsRoundTripThroughWireIDs(t *testing.T) {
	testlog.Start(t)
	for cmd, b := range bindings {
		got, ok := Lookup(b.Service, b.ID)
		if !ok || got != cmd {
			t.Fatalf("lookup %s: got=%v ok=%v", cmd, got, ok)
		}
		if b.Event && b.Request != 0 {
			t.Fatalf("event %s must not declare a request kind", cmd)
		}
		if _, ok := requirements[b.Response]; !ok {
			t.Fatalf("%s response kind %d has no schema", cmd, b.Response)
		}
	}
	if _, ok := Lookup(ServiceEcmascriptDebugger, 999); ok {
		t.Fatalf("unexpected binding for unknown id")
	}
	if CmdEval.String() != "ecmascript-debugger.Eval" {
		t.Fatalf("unexpected command name %q", CmdEval.String())
	}
}
