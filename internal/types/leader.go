package types

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	leaderNameField  = "name"
	leaderAdminField = "admin"
	leaderIDField    = "id"
)

// Leader describes the client holding leadership of a site. Only name, admin and
// id are read; every other attribute is passed through untouched.
type Leader struct {
	fields *structpb.Struct
}

func NewLeader(raw map[string]any) (Leader, error) {
	s, err := structpb.NewStruct(raw)
	if err != nil {
		return Leader{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	l := Leader{fields: s}
	if err := l.validate(); err != nil {
		return Leader{}, err
	}
	return l, nil
}

func MustLeader(raw map[string]any) Leader {
	l, err := NewLeader(raw)
	if err != nil {
		panic(err)
	}
	return l
}

func (l Leader) IsZero() bool {
	return l.fields == nil
}

func (l Leader) Name() string {
	return l.fields.GetFields()[leaderNameField].GetStringValue()
}

func (l Leader) Admin() bool {
	return l.fields.GetFields()[leaderAdminField].GetBoolValue()
}

func (l Leader) ID() string {
	v, ok := l.fields.GetFields()[leaderIDField]
	if !ok {
		return ""
	}
	if s, ok := v.GetKind().(*structpb.Value_StringValue); ok {
		return s.StringValue
	}
	b, err := protojson.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func (l Leader) Attributes() map[string]any {
	if l.fields == nil {
		return map[string]any{}
	}
	return l.fields.AsMap()
}

func (l Leader) Clone() Leader {
	if l.fields == nil {
		return Leader{}
	}
	return Leader{fields: proto.Clone(l.fields).(*structpb.Struct)}
}

func (l Leader) MarshalJSON() ([]byte, error) {
	if l.fields == nil {
		return []byte("null"), nil
	}
	return protojson.Marshal(l.fields)
}

func (l *Leader) UnmarshalJSON(data []byte) error {
	pb := &structpb.Struct{}
	if err := protojson.Unmarshal(data, pb); err != nil {
		return fmt.Errorf("%w: leader must be an object: %v", ErrInvalidValue, err)
	}
	next := Leader{fields: pb}
	if err := next.validate(); err != nil {
		return err
	}
	*l = next
	return nil
}

func (l Leader) validate() error {
	name, ok := l.fields.GetFields()[leaderNameField]
	if !ok {
		return fmt.Errorf("%w: leader.%s is required", ErrInvalidValue, leaderNameField)
	}
	if _, ok := name.GetKind().(*structpb.Value_StringValue); !ok {
		return fmt.Errorf("%w: leader.%s must be a string", ErrInvalidValue, leaderNameField)
	}
	if admin, ok := l.fields.GetFields()[leaderAdminField]; ok {
		if _, isBool := admin.GetKind().(*structpb.Value_BoolValue); !isBool {
			return fmt.Errorf("%w: leader.%s must be a boolean", ErrInvalidValue, leaderAdminField)
		}
	}
	return nil
}
