package nodes

import (
	"fmt"
	"strings"
)

// ChannelType is the closed set of delivery channels an event action can
// target. Modeled as an enum with a capability flag instead of ad hoc
// string matching so "gmail" vs "email" style drift cannot happen.
type ChannelType int

const (
	ChannelUnknown ChannelType = iota
	ChannelEmail
	ChannelText
	ChannelEmergency
)

func ParseChannelType(s string) ChannelType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "email", "gmail", "mail":
		return ChannelEmail
	case "text", "sms":
		return ChannelText
	case "emergency":
		return ChannelEmergency
	default:
		return ChannelUnknown
	}
}

func (c ChannelType) String() string {
	switch c {
	case ChannelEmail:
		return "email"
	case ChannelText:
		return "text"
	case ChannelEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// IsEmailCapable reports whether the Notifier can deliver on this channel.
func (c ChannelType) IsEmailCapable() bool {
	return c == ChannelEmail
}

// DataType is the expected result type of a listener's prompt field.
type DataType string

const (
	TypeBoolean DataType = "boolean"
	TypeInteger DataType = "integer"
	TypeNumber  DataType = "number"
	TypeString  DataType = "string"
)

// ConditionConfig qualifies when a listener applies.
type ConditionConfig struct {
	ID        string   `json:"id,omitempty"`
	Name      string   `json:"name"`
	Type      string   `json:"type,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
}

// EventConfig is one action attached to a listener.
type EventConfig struct {
	ID          string `json:"id,omitempty"`
	Action      string `json:"action"`
	Channel     string `json:"channel"`
	Recipient   string `json:"recipient,omitempty"`
	Message     string `json:"message,omitempty"`
	Description string `json:"description,omitempty"`
}

// ChannelType parses the configured channel string once, at use time.
func (e EventConfig) ChannelType() ChannelType {
	return ParseChannelType(e.Channel)
}

// ListenerConfig is a user-authored detection unit.
type ListenerConfig struct {
	ID          string            `json:"id,omitempty"`
	Name        string            `json:"name"`
	Type        string            `json:"type,omitempty"`
	Description string            `json:"description,omitempty"`
	Datatype    DataType          `json:"datatype,omitempty"`
	Conditions  []ConditionConfig `json:"conditions,omitempty"`
	Events      []EventConfig     `json:"events,omitempty"`
}

// Validate rejects listeners that cannot be compiled into a prompt field.
func (l *ListenerConfig) Validate() error {
	if l.Name == "" && l.ID == "" {
		return fmt.Errorf("listener requires a name or id")
	}
	switch l.Datatype {
	case "", TypeBoolean, TypeInteger, TypeNumber, TypeString:
	default:
		return fmt.Errorf("unsupported datatype %q", l.Datatype)
	}
	return nil
}
