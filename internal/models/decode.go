package models

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// DecodeAction decodes a JSON action using its "type" discriminator.
func DecodeAction(data []byte) (Action, error) {
	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decoding action type: %w", err)
	}
	a, err := newAction(head.Type)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, a); err != nil {
		return nil, fmt.Errorf("decoding %s action: %w", head.Type, err)
	}
	return deref(a), nil
}

// DecodeActions decodes a JSON array of actions.
func DecodeActions(data []byte) ([]Action, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding action list: %w", err)
	}
	actions := make([]Action, 0, len(raw))
	for i, r := range raw {
		a, err := DecodeAction(r)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		actions = append(actions, a)
	}
	return actions, nil
}

// DecodeActionsYAML decodes a YAML sequence of actions.
func DecodeActionsYAML(data []byte) ([]Action, error) {
	var nodes []yaml.Node
	if err := yaml.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("decoding action list: %w", err)
	}
	actions := make([]Action, 0, len(nodes))
	for i := range nodes {
		var head struct {
			Type Kind `yaml:"type"`
		}
		if err := nodes[i].Decode(&head); err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		a, err := newAction(head.Type)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		if err := nodes[i].Decode(a); err != nil {
			return nil, fmt.Errorf("action %d: decoding %s: %w", i, head.Type, err)
		}
		actions = append(actions, deref(a))
	}
	return actions, nil
}

// EncodeAction encodes an action as JSON with its "type" discriminator.
func EncodeAction(a Action) ([]byte, error) {
	body, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	kind, _ := json.Marshal(a.Kind())
	fields["type"] = kind
	return json.Marshal(fields)
}

func newAction(kind Kind) (any, error) {
	switch kind {
	case KindUpdateStyle:
		return &UpdateStyle{}, nil
	case KindInsertElement:
		return &InsertElement{}, nil
	case KindRemoveElement:
		return &RemoveElement{}, nil
	case KindMoveElement:
		return &MoveElement{}, nil
	case KindEditText:
		return &EditText{}, nil
	case KindGroupElements:
		return &GroupElements{}, nil
	case KindUngroupElement:
		return &UngroupElements{}, nil
	case KindInsertImage:
		return &InsertImage{}, nil
	case KindRemoveImage:
		return &RemoveImage{}, nil
	case KindWriteCode:
		return &WriteCode{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAction, kind)
}

func deref(a any) Action {
	switch v := a.(type) {
	case *UpdateStyle:
		return *v
	case *InsertElement:
		return *v
	case *RemoveElement:
		return *v
	case *MoveElement:
		return *v
	case *EditText:
		return *v
	case *GroupElements:
		return *v
	case *UngroupElements:
		return *v
	case *InsertImage:
		return *v
	case *RemoveImage:
		return *v
	case *WriteCode:
		return *v
	}
	return nil
}
