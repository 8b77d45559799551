package types

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

var ErrInvalidValue = errors.New("invalid value")

// Value is a single schema-less state value: null, number, string, bool, list or object.
type Value struct {
	v *structpb.Value
}

func NewValue(raw any) (Value, error) {
	v, err := structpb.NewValue(raw)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return Value{v: v}, nil
}

func MustValue(raw any) Value {
	v, err := NewValue(raw)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Value) IsZero() bool {
	return v.v == nil
}

func (v Value) AsInterface() any {
	if v.v == nil {
		return nil
	}
	return v.v.AsInterface()
}

func (v Value) Clone() Value {
	if v.v == nil {
		return Value{}
	}
	return Value{v: proto.Clone(v.v).(*structpb.Value)}
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.v == nil {
		return []byte("null"), nil
	}
	return protojson.Marshal(v.v)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	pb := &structpb.Value{}
	if err := protojson.Unmarshal(data, pb); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	v.v = pb
	return nil
}

// State is the full key/value mapping a leader publishes for its site.
type State struct {
	fields *structpb.Struct
}

func NewState(raw map[string]any) (State, error) {
	s, err := structpb.NewStruct(raw)
	if err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return State{fields: s}, nil
}

func MustState(raw map[string]any) State {
	s, err := NewState(raw)
	if err != nil {
		panic(err)
	}
	return s
}

func (s State) IsZero() bool {
	return s.fields == nil
}

func (s State) Len() int {
	if s.fields == nil {
		return 0
	}
	return len(s.fields.GetFields())
}

func (s State) Get(key string) (Value, bool) {
	if s.fields == nil {
		return Value{}, false
	}
	v, ok := s.fields.GetFields()[key]
	if !ok {
		return Value{}, false
	}
	return Value{v: v}, true
}

// Set writes key in place. The receiver must come from NewState, Clone or UnmarshalJSON.
func (s State) Set(key string, v Value) {
	if s.fields.Fields == nil {
		s.fields.Fields = make(map[string]*structpb.Value)
	}
	if v.v == nil {
		s.fields.Fields[key] = structpb.NewNullValue()
		return
	}
	s.fields.Fields[key] = v.v
}

func (s State) Clone() State {
	if s.fields == nil {
		return State{fields: &structpb.Struct{Fields: map[string]*structpb.Value{}}}
	}
	return State{fields: proto.Clone(s.fields).(*structpb.Struct)}
}

func (s State) AsMap() map[string]any {
	if s.fields == nil {
		return map[string]any{}
	}
	return s.fields.AsMap()
}

func (s State) MarshalJSON() ([]byte, error) {
	if s.fields == nil {
		return []byte("{}"), nil
	}
	return protojson.Marshal(s.fields)
}

func (s *State) UnmarshalJSON(data []byte) error {
	pb := &structpb.Struct{}
	if err := protojson.Unmarshal(data, pb); err != nil {
		return fmt.Errorf("%w: state must be an object: %v", ErrInvalidValue, err)
	}
	if pb.Fields == nil {
		pb.Fields = make(map[string]*structpb.Value)
	}
	s.fields = pb
	return nil
}
