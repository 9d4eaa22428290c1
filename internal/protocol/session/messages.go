package session

import (
	"errors"
	"fmt"

	"github.com/danmuck/scopectl/internal/protocol/schema"
	"github.com/danmuck/scopectl/internal/protocol/tlv"
)

var ErrMalformedPayload = errors.New("session: malformed payload")

// Message is one typed payload bound to a schema message kind.
type Message interface {
	Kind() uint32
	Fields() []tlv.Field
}

// Marshal validates m against its schema and encodes it.
func Marshal(m Message) ([]byte, error) {
	fields := m.Fields()
	if err := schema.Validate(m.Kind(), fields); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return tlv.EncodeFields(fields), nil
}

// Default is the empty message.
type Default struct{}

func (Default) Kind() uint32 { return schema.MsgDefault }
func (Default) Fields() []tlv.Field { return nil }

type RuntimeSelection struct {
	RuntimeIDs  []uint32
	AllRuntimes bool
}

func (RuntimeSelection) Kind() uint32 { return schema.MsgRuntimeSelection }

func (s RuntimeSelection) Fields() []tlv.Field {
	fields := make([]tlv.Field, 0, len(s.RuntimeIDs)+1)
	for _, id := range s.RuntimeIDs {
		fields = append(fields, tlv.U32(schema.FieldRuntimeID, id))
	}
	if s.AllRuntimes {
		fields = append(fields, tlv.Bool(schema.FieldAllRuntimes, true))
	}
	return fields
}

// RuntimeInfo describes one script execution context.
type RuntimeInfo struct {
	RuntimeID uint32
	WindowID  uint32
	FramePath string
	URI       string
	ObjectID  uint32
}

func (RuntimeInfo) Kind() uint32 { return schema.MsgRuntimeInfo }

func (r RuntimeInfo) Fields() []tlv.Field {
	fields := []tlv.Field{
		tlv.U32(schema.FieldRuntimeID, r.RuntimeID),
		tlv.U32(schema.FieldWindowID, r.WindowID),
		tlv.String(schema.FieldFramePath, r.FramePath),
	}
	if r.URI != "" {
		fields = append(fields, tlv.String(schema.FieldURI, r.URI))
	}
	if r.ObjectID != 0 {
		fields = append(fields, tlv.U32(schema.FieldObjectID, r.ObjectID))
	}
	return fields
}

func decodeRuntimeInfo(fields []tlv.Field) (RuntimeInfo, error) {
	if err := validate(schema.MsgRuntimeInfo, fields); err != nil {
		return RuntimeInfo{}, err
	}
	info := RuntimeInfo{
		FramePath: optString(fields, schema.FieldFramePath),
		URI:       optString(fields, schema.FieldURI),
	}
	var err error
	if info.RuntimeID, err = reqU32(fields, schema.FieldRuntimeID); err != nil {
		return RuntimeInfo{}, err
	}
	if info.WindowID, err = reqU32(fields, schema.FieldWindowID); err != nil {
		return RuntimeInfo{}, err
	}
	if info.ObjectID, err = optU32(fields, schema.FieldObjectID); err != nil {
		return RuntimeInfo{}, err
	}
	return info, nil
}

func UnmarshalRuntimeInfo(payload []byte) (RuntimeInfo, error) {
	fields, err := decodePayload(payload)
	if err != nil {
		return RuntimeInfo{}, err
	}
	return decodeRuntimeInfo(fields)
}

type RuntimeList struct {
	Runtimes []RuntimeInfo
}

func (RuntimeList) Kind() uint32 { return schema.MsgRuntimeList }

func (l RuntimeList) Fields() []tlv.Field {
	fields := make([]tlv.Field, 0, len(l.Runtimes))
	for _, r := range l.Runtimes {
		fields = append(fields, tlv.Message(schema.FieldRuntime, r.Fields()))
	}
	return fields
}

func UnmarshalRuntimeList(payload []byte) (RuntimeList, error) {
	fields, err := decodePayload(payload)
	if err != nil {
		return RuntimeList{}, err
	}
	var out RuntimeList
	for _, f := range tlv.GetAll(fields, schema.FieldRuntime) {
		nested, err := nestedFields(f)
		if err != nil {
			return RuntimeList{}, err
		}
		info, err := decodeRuntimeInfo(nested)
		if err != nil {
			return RuntimeList{}, err
		}
		out.Runtimes = append(out.Runtimes, info)
	}
	return out, nil
}

// RuntimeRef carries a bare runtime id (OnRuntimeStopped).
type RuntimeRef struct {
	RuntimeID uint32
}

func (RuntimeRef) Kind() uint32 { return schema.MsgRuntimeID }

func (r RuntimeRef) Fields() []tlv.Field {
	return []tlv.Field{tlv.U32(schema.FieldRuntimeID, r.RuntimeID)}
}

func UnmarshalRuntimeRef(payload []byte) (RuntimeRef, error) {
	fields, err := decodePayload(payload)
	if err != nil {
		return RuntimeRef{}, err
	}
	if err := validate(schema.MsgRuntimeID, fields); err != nil {
		return RuntimeRef{}, err
	}
	id, err := reqU32(fields, schema.FieldRuntimeID)
	if err != nil {
		return RuntimeRef{}, err
	}
	return RuntimeRef{RuntimeID: id}, nil
}

// Variable binds a script-visible name to a live object id.
type Variable struct {
	Name     string
	ObjectID uint32
}

func (v Variable) Fields() []tlv.Field {
	return []tlv.Field{
		tlv.String(schema.FieldName, v.Name),
		tlv.U32(schema.FieldObjectID, v.ObjectID),
	}
}

type EvalData struct {
	RuntimeID  uint32
	ThreadID   uint32
	FrameIndex uint32
	ScriptData string
	Variables  []Variable
}

func (EvalData) Kind() uint32 { return schema.MsgEvalData }

func (e EvalData) Fields() []tlv.Field {
	fields := []tlv.Field{
		tlv.U32(schema.FieldRuntimeID, e.RuntimeID),
		tlv.U32(schema.FieldThreadID, e.ThreadID),
		tlv.U32(schema.FieldFrameIndex, e.FrameIndex),
		tlv.String(schema.FieldScriptData, e.ScriptData),
	}
	for _, v := range e.Variables {
		fields = append(fields, tlv.Message(schema.FieldVariable, v.Fields()))
	}
	return fields
}

func UnmarshalEvalData(payload []byte) (EvalData, error) {
	fields, err := decodePayload(payload)
	if err != nil {
		return EvalData{}, err
	}
	if err := validate(schema.MsgEvalData, fields); err != nil {
		return EvalData{}, err
	}
	out := EvalData{ScriptData: optString(fields, schema.FieldScriptData)}
	if out.RuntimeID, err = reqU32(fields, schema.FieldRuntimeID); err != nil {
		return EvalData{}, err
	}
	if out.ThreadID, err = optU32(fields, schema.FieldThreadID); err != nil {
		return EvalData{}, err
	}
	if out.FrameIndex, err = optU32(fields, schema.FieldFrameIndex); err != nil {
		return EvalData{}, err
	}
	for _, f := range tlv.GetAll(fields, schema.FieldVariable) {
		nested, err := nestedFields(f)
		if err != nil {
			return EvalData{}, err
		}
		if err := validate(schema.MsgVariable, nested); err != nil {
			return EvalData{}, err
		}
		id, err := reqU32(nested, schema.FieldObjectID)
		if err != nil {
			return EvalData{}, err
		}
		out.Variables = append(out.Variables, Variable{Name: optString(nested, schema.FieldName), ObjectID: id})
	}
	return out, nil
}

// ObjectValue is a handle to a live object in the debugged context.
type ObjectValue struct {
	ObjectID  uint32
	ClassName string
	Name      string
}

func (o ObjectValue) Fields() []tlv.Field {
	fields := []tlv.Field{tlv.U32(schema.FieldObjectID, o.ObjectID)}
	if o.ClassName != "" {
		fields = append(fields, tlv.String(schema.FieldClassName, o.ClassName))
	}
	if o.Name != "" {
		fields = append(fields, tlv.String(schema.FieldName, o.Name))
	}
	return fields
}

func decodeObjectValue(f tlv.Field) (*ObjectValue, error) {
	nested, err := nestedFields(f)
	if err != nil {
		return nil, err
	}
	if err := validate(schema.MsgObjectValue, nested); err != nil {
		return nil, err
	}
	id, err := reqU32(nested, schema.FieldObjectID)
	if err != nil {
		return nil, err
	}
	return &ObjectValue{
		ObjectID:  id,
		ClassName: optString(nested, schema.FieldClassName),
		Name:      optString(nested, schema.FieldName),
	}, nil
}

// EvalResult statuses.
const (
	StatusCompleted            = "completed"
	StatusUnhandledException   = "unhandled-exception"
	StatusCancelledByScheduler = "cancelled-by-scheduler"
	StatusAborted              = "aborted"
)

type EvalResult struct {
	Status string
	Type   string
	Value  string
	Object *ObjectValue
}

func (EvalResult) Kind() uint32 { return schema.MsgEvalResult }

func (r EvalResult) Fields() []tlv.Field {
	fields := []tlv.Field{tlv.String(schema.FieldStatus, r.Status)}
	if r.Type != "" {
		fields = append(fields, tlv.String(schema.FieldType, r.Type))
	}
	if r.Value != "" {
		fields = append(fields, tlv.String(schema.FieldValue, r.Value))
	}
	if r.Object != nil {
		fields = append(fields, tlv.Message(schema.FieldObjectValue, r.Object.Fields()))
	}
	return fields
}

func UnmarshalEvalResult(payload []byte) (EvalResult, error) {
	fields, err := decodePayload(payload)
	if err != nil {
		return EvalResult{}, err
	}
	if err := validate(schema.MsgEvalResult, fields); err != nil {
		return EvalResult{}, err
	}
	out := EvalResult{
		Status: optString(fields, schema.FieldStatus),
		Type:   optString(fields, schema.FieldType),
		Value:  optString(fields, schema.FieldValue),
	}
	if f, ok := tlv.GetField(fields, schema.FieldObjectValue); ok {
		if out.Object, err = decodeObjectValue(f); err != nil {
			return EvalResult{}, err
		}
	}
	return out, nil
}

type ExamineList struct {
	RuntimeID uint32
	ObjectIDs []uint32
}

func (ExamineList) Kind() uint32 { return schema.MsgExamineList }

func (l ExamineList) Fields() []tlv.Field {
	fields := []tlv.Field{tlv.U32(schema.FieldRuntimeID, l.RuntimeID)}
	for _, id := range l.ObjectIDs {
		fields = append(fields, tlv.U32(schema.FieldObjectID, id))
	}
	return fields
}

func UnmarshalExamineList(payload []byte) (ExamineList, error) {
	fields, err := decodePayload(payload)
	if err != nil {
		return ExamineList{}, err
	}
	if err := validate(schema.MsgExamineList, fields); err != nil {
		return ExamineList{}, err
	}
	out := ExamineList{}
	if out.RuntimeID, err = reqU32(fields, schema.FieldRuntimeID); err != nil {
		return ExamineList{}, err
	}
	for _, f := range tlv.GetAll(fields, schema.FieldObjectID) {
		id, err := tlv.U32FromBytes(f.Value)
		if err != nil {
			return ExamineList{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
		}
		out.ObjectIDs = append(out.ObjectIDs, id)
	}
	return out, nil
}

type Property struct {
	Name   string
	Type   string
	Value  string
	Object *ObjectValue
}

func (p Property) Fields() []tlv.Field {
	fields := []tlv.Field{
		tlv.String(schema.FieldName, p.Name),
		tlv.String(schema.FieldType, p.Type),
	}
	if p.Value != "" {
		fields = append(fields, tlv.String(schema.FieldValue, p.Value))
	}
	if p.Object != nil {
		fields = append(fields, tlv.Message(schema.FieldObjectValue, p.Object.Fields()))
	}
	return fields
}

type ObjectInfo struct {
	Value      ObjectValue
	Properties []Property
}

func (o ObjectInfo) Fields() []tlv.Field {
	fields := []tlv.Field{tlv.Message(schema.FieldObjectValue, o.Value.Fields())}
	for _, p := range o.Properties {
		fields = append(fields, tlv.Message(schema.FieldProperty, p.Fields()))
	}
	return fields
}

type ObjectList struct {
	Objects []ObjectInfo
}

func (ObjectList) Kind() uint32 { return schema.MsgObjectList }

func (l ObjectList) Fields() []tlv.Field {
	fields := make([]tlv.Field, 0, len(l.Objects))
	for _, o := range l.Objects {
		fields = append(fields, tlv.Message(schema.FieldObjectInfo, o.Fields()))
	}
	return fields
}

func UnmarshalObjectList(payload []byte) (ObjectList, error) {
	fields, err := decodePayload(payload)
	if err != nil {
		return ObjectList{}, err
	}
	var out ObjectList
	for _, f := range tlv.GetAll(fields, schema.FieldObjectInfo) {
		info, err := decodeObjectInfo(f)
		if err != nil {
			return ObjectList{}, err
		}
		out.Objects = append(out.Objects, info)
	}
	return out, nil
}

func decodeObjectInfo(f tlv.Field) (ObjectInfo, error) {
	nested, err := nestedFields(f)
	if err != nil {
		return ObjectInfo{}, err
	}
	if err := validate(schema.MsgObjectInfo, nested); err != nil {
		return ObjectInfo{}, err
	}
	valueField, _ := tlv.GetField(nested, schema.FieldObjectValue)
	value, err := decodeObjectValue(valueField)
	if err != nil {
		return ObjectInfo{}, err
	}
	out := ObjectInfo{Value: *value}
	for _, pf := range tlv.GetAll(nested, schema.FieldProperty) {
		props, err := nestedFields(pf)
		if err != nil {
			return ObjectInfo{}, err
		}
		if err := validate(schema.MsgProperty, props); err != nil {
			return ObjectInfo{}, err
		}
		p := Property{
			Name:  optString(props, schema.FieldName),
			Type:  optString(props, schema.FieldType),
			Value: optString(props, schema.FieldValue),
		}
		if of, ok := tlv.GetField(props, schema.FieldObjectValue); ok {
			if p.Object, err = decodeObjectValue(of); err != nil {
				return ObjectInfo{}, err
			}
		}
		out.Properties = append(out.Properties, p)
	}
	return out, nil
}

// Configuration toggles the debugger's stop-at behaviour.
type Configuration struct {
	StopAtScript            bool
	StopAtException         bool
	StopAtError             bool
	StopAtAbort             bool
	StopAtGC                bool
	StopAtDebuggerStatement bool
}

func (Configuration) Kind() uint32 { return schema.MsgConfiguration }

func (c Configuration) Fields() []tlv.Field {
	return []tlv.Field{
		tlv.Bool(schema.FieldStopAtScript, c.StopAtScript),
		tlv.Bool(schema.FieldStopAtException, c.StopAtException),
		tlv.Bool(schema.FieldStopAtError, c.StopAtError),
		tlv.Bool(schema.FieldStopAtAbort, c.StopAtAbort),
		tlv.Bool(schema.FieldStopAtGC, c.StopAtGC),
		tlv.Bool(schema.FieldStopAtDebuggerStatement, c.StopAtDebuggerStatement),
	}
}

type WindowRef struct {
	WindowID uint32
}

func (WindowRef) Kind() uint32 { return schema.MsgWindowID }

func (w WindowRef) Fields() []tlv.Field {
	return []tlv.Field{tlv.U32(schema.FieldWindowID, w.WindowID)}
}

func UnmarshalWindowRef(payload []byte) (WindowRef, error) {
	fields, err := decodePayload(payload)
	if err != nil {
		return WindowRef{}, err
	}
	if err := validate(schema.MsgWindowID, fields); err != nil {
		return WindowRef{}, err
	}
	id, err := reqU32(fields, schema.FieldWindowID)
	if err != nil {
		return WindowRef{}, err
	}
	return WindowRef{WindowID: id}, nil
}

// WindowInfo describes a browser window. OpenerID is zero for windows the user
// opened, non-zero for script popups.
type WindowInfo struct {
	WindowID   uint32
	Title      string
	WindowType string
	OpenerID   uint32
}

func (WindowInfo) Kind() uint32 { return schema.MsgWindowInfo }

func (w WindowInfo) Fields() []tlv.Field {
	fields := []tlv.Field{tlv.U32(schema.FieldWindowID, w.WindowID)}
	if w.Title != "" {
		fields = append(fields, tlv.String(schema.FieldTitle, w.Title))
	}
	if w.WindowType != "" {
		fields = append(fields, tlv.String(schema.FieldWindowType, w.WindowType))
	}
	if w.OpenerID != 0 {
		fields = append(fields, tlv.U32(schema.FieldOpenerID, w.OpenerID))
	}
	return fields
}

func decodeWindowInfo(fields []tlv.Field) (WindowInfo, error) {
	if err := validate(schema.MsgWindowInfo, fields); err != nil {
		return WindowInfo{}, err
	}
	out := WindowInfo{
		Title:      optString(fields, schema.FieldTitle),
		WindowType: optString(fields, schema.FieldWindowType),
	}
	var err error
	if out.WindowID, err = reqU32(fields, schema.FieldWindowID); err != nil {
		return WindowInfo{}, err
	}
	if out.OpenerID, err = optU32(fields, schema.FieldOpenerID); err != nil {
		return WindowInfo{}, err
	}
	return out, nil
}

func UnmarshalWindowInfo(payload []byte) (WindowInfo, error) {
	fields, err := decodePayload(payload)
	if err != nil {
		return WindowInfo{}, err
	}
	return decodeWindowInfo(fields)
}

type WindowList struct {
	Windows []WindowInfo
}

func (WindowList) Kind() uint32 { return schema.MsgWindowList }

func (l WindowList) Fields() []tlv.Field {
	fields := make([]tlv.Field, 0, len(l.Windows))
	for _, w := range l.Windows {
		fields = append(fields, tlv.Message(schema.FieldWindow, w.Fields()))
	}
	return fields
}

func UnmarshalWindowList(payload []byte) (WindowList, error) {
	fields, err := decodePayload(payload)
	if err != nil {
		return WindowList{}, err
	}
	var out WindowList
	for _, f := range tlv.GetAll(fields, schema.FieldWindow) {
		nested, err := nestedFields(f)
		if err != nil {
			return WindowList{}, err
		}
		w, err := decodeWindowInfo(nested)
		if err != nil {
			return WindowList{}, err
		}
		out.Windows = append(out.Windows, w)
	}
	return out, nil
}

// ErrorInfo is the body of an error response frame.
type ErrorInfo struct {
	Message string
}

func (ErrorInfo) Kind() uint32 { return schema.MsgError }

func (e ErrorInfo) Fields() []tlv.Field {
	return []tlv.Field{tlv.String(schema.FieldErrorMessage, e.Message)}
}

func decodePayload(payload []byte) ([]tlv.Field, error) {
	fields, err := tlv.DecodeFields(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return fields, nil
}

func nestedFields(f tlv.Field) ([]tlv.Field, error) {
	if err := tlv.MustType(f, tlv.TypeMessage); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return decodePayload(f.Value)
}

func validate(kind uint32, fields []tlv.Field) error {
	if err := schema.Validate(kind, fields); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return nil
}

func optString(fields []tlv.Field, id uint16) string {
	f, ok := tlv.GetField(fields, id)
	if !ok || f.Type != tlv.TypeString {
		return ""
	}
	return string(f.Value)
}

func reqU32(fields []tlv.Field, id uint16) (uint32, error) {
	f, _ := tlv.GetField(fields, id)
	v, err := tlv.U32FromBytes(f.Value)
	if err != nil {
		return 0, fmt.Errorf("%w: field %d: %w", ErrMalformedPayload, id, err)
	}
	return v, nil
}

func optU32(fields []tlv.Field, id uint16) (uint32, error) {
	if _, ok := tlv.GetField(fields, id); !ok {
		return 0, nil
	}
	return reqU32(fields, id)
}

func UnmarshalErrorInfo(payload []byte) (ErrorInfo, error) {
	fields, err := decodePayload(payload)
	if err != nil {
		return ErrorInfo{}, err
	}
	if err := validate(schema.MsgError, fields); err != nil {
		return ErrorInfo{}, err
	}
	return ErrorInfo{Message: optString(fields, schema.FieldErrorMessage)}, nil
}

func UnmarshalRuntimeSelection(payload []byte) (RuntimeSelection, error) {
	fields, err := decodePayload(payload)
	if err != nil {
		return RuntimeSelection{}, err
	}
	var out RuntimeSelection
	for _, f := range tlv.GetAll(fields, schema.FieldRuntimeID) {
		id, err := tlv.U32FromBytes(f.Value)
		if err != nil {
			return RuntimeSelection{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
		}
		out.RuntimeIDs = append(out.RuntimeIDs, id)
	}
	if f, ok := tlv.GetField(fields, schema.FieldAllRuntimes); ok {
		if out.AllRuntimes, err = tlv.BoolFromBytes(f.Value); err != nil {
			return RuntimeSelection{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
		}
	}
	return out, nil
}

func UnmarshalConfiguration(payload []byte) (Configuration, error) {
	fields, err := decodePayload(payload)
	if err != nil {
		return Configuration{}, err
	}
	flag := func(id uint16) (bool, error) {
		f, ok := tlv.GetField(fields, id)
		if !ok {
			return false, nil
		}
		v, err := tlv.BoolFromBytes(f.Value)
		if err != nil {
			return false, fmt.Errorf("%w: field %d: %w", ErrMalformedPayload, id, err)
		}
		return v, nil
	}
	var out Configuration
	targets := []struct {
		id  uint16
		dst *bool
	}{
		{schema.FieldStopAtScript, &out.StopAtScript},
		{schema.FieldStopAtException, &out.StopAtException},
		{schema.FieldStopAtError, &out.StopAtError},
		{schema.FieldStopAtAbort, &out.StopAtAbort},
		{schema.FieldStopAtGC, &out.StopAtGC},
		{schema.FieldStopAtDebuggerStatement, &out.StopAtDebuggerStatement},
	}
	for _, tgt := range targets {
		if *tgt.dst, err = flag(tgt.id); err != nil {
			return Configuration{}, err
		}
	}
	return out, nil
}
