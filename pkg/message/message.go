package message

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// MapEntryKey is the property under which a map entry split stores the entry key.
const MapEntryKey = "MAP_ENTRY_KEY"

// Message is the unit of work flowing through a pipeline.
// A message is owned by the host; stages mutate its payload and properties
// but never replace the pointer they were handed.
type Message struct {
	// ID uniquely identifies this message instance
	ID string `json:"id"`

	// CorrelationID is shared by a message and every message derived from it
	CorrelationID string `json:"correlationId,omitempty"`

	// Payload is the message body; any Go value
	Payload interface{} `json:"payload"`

	// Properties are invocation-scoped variables. Values that are *Message
	// are non-owning back-references and are never serialized or cloned.
	Properties map[string]interface{} `json:"properties,omitempty"`

	// Metadata holds string key-value pairs carried across transports
	Metadata map[string]string `json:"metadata,omitempty"`

	// CreatedAt is the timestamp when the message was created
	CreatedAt string `json:"createdAt"`

	// UpdatedAt is the timestamp when the message was last updated
	UpdatedAt string `json:"updatedAt"`

	// natsMsg holds the original NATS message for acknowledgment (not serialized)
	natsMsg *nats.Msg
}

// NewMessage creates a new message with the given payload
func NewMessage(payload interface{}) *Message {
	now := time.Now().Format(time.RFC3339)
	id := uuid.NewString()
	return &Message{
		ID:            id,
		CorrelationID: id,
		Payload:       payload,
		Properties:    make(map[string]interface{}),
		Metadata:      make(map[string]string),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// NewChildMessage creates a message derived from parent carrying payload.
// Properties and metadata are copied on create; back-references are copied
// as references.
func NewChildMessage(parent *Message, payload interface{}) *Message {
	child := NewMessage(payload)
	if parent == nil {
		return child
	}
	child.CorrelationID = parent.CorrelationID
	for k, v := range parent.Properties {
		child.Properties[k] = v
	}
	for k, v := range parent.Metadata {
		child.Metadata[k] = v
	}
	return child
}

// SetPayload replaces the payload
func (m *Message) SetPayload(payload interface{}) *Message {
	m.Payload = payload
	m.UpdatedAt = time.Now().Format(time.RFC3339)
	return m
}

// SetProperty sets an invocation property
func (m *Message) SetProperty(key string, value interface{}) *Message {
	if m.Properties == nil {
		m.Properties = make(map[string]interface{})
	}
	m.Properties[key] = value
	return m
}

// Property returns an invocation property
func (m *Message) Property(key string) (interface{}, bool) {
	v, ok := m.Properties[key]
	return v, ok
}

// RemoveProperty deletes an invocation property
func (m *Message) RemoveProperty(key string) {
	delete(m.Properties, key)
}

// Reference returns the message stored under key when it is a back-reference
func (m *Message) Reference(key string) *Message {
	if ref, ok := m.Properties[key].(*Message); ok {
		return ref
	}
	return nil
}

// WithCorrelationID sets the correlation ID for the message
func (m *Message) WithCorrelationID(correlationID string) *Message {
	m.CorrelationID = correlationID
	m.UpdatedAt = time.Now().Format(time.RFC3339)
	return m
}

// WithMetadata adds metadata to the message
func (m *Message) WithMetadata(key, value string) *Message {
	if m.Metadata == nil {
		m.Metadata = make(map[string]string)
	}
	m.Metadata[key] = value
	m.UpdatedAt = time.Now().Format(time.RFC3339)
	return m
}

// Clone returns a copy of the message with a new ID. The payload is deep
// copied when it is a JSON-like tree (maps, slices and scalars); other
// payload values are shared. Back-reference properties stay references.
func (m *Message) Clone() *Message {
	c := &Message{
		ID:            uuid.NewString(),
		CorrelationID: m.CorrelationID,
		Payload:       deepCopy(m.Payload),
		Properties:    make(map[string]interface{}, len(m.Properties)),
		Metadata:      make(map[string]string, len(m.Metadata)),
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     time.Now().Format(time.RFC3339),
	}
	for k, v := range m.Properties {
		if ref, ok := v.(*Message); ok {
			c.Properties[k] = ref
			continue
		}
		c.Properties[k] = deepCopy(v)
	}
	for k, v := range m.Metadata {
		c.Metadata[k] = v
	}
	return c
}

func deepCopy(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	case []byte:
		out := make([]byte, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}

// serializableProperties strips back-references from the property map
func (m *Message) serializableProperties() map[string]interface{} {
	if len(m.Properties) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(m.Properties))
	for k, v := range m.Properties {
		if _, ok := v.(*Message); ok {
			continue
		}
		out[k] = v
	}
	return out
}

// xmlOutputter is implemented by XML tree nodes, which are linked both ways
// and cannot be encoded structurally.
type xmlOutputter interface {
	OutputXML(self bool) string
}

// MarshalJSON encodes the message without back-reference properties
func (m *Message) MarshalJSON() ([]byte, error) {
	type alias Message
	a := alias(*m)
	a.Properties = m.serializableProperties()
	if doc, ok := m.Payload.(xmlOutputter); ok {
		a.Payload = doc.OutputXML(true)
	}
	return json.Marshal(&a)
}

// ToBytes serializes the message to JSON bytes
func (m *Message) ToBytes() ([]byte, error) {
	return json.Marshal(m)
}

// FromBytes deserializes a message from JSON bytes
func FromBytes(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Properties == nil {
		msg.Properties = make(map[string]interface{})
	}
	if msg.Metadata == nil {
		msg.Metadata = make(map[string]string)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	return &msg, nil
}

// FromNATSMsg converts a NATS message to a Message, keeping the original
// for acknowledgment and reply
func FromNATSMsg(natsMsg *nats.Msg) (*Message, error) {
	msg, err := FromBytes(natsMsg.Data)
	if err != nil {
		return nil, err
	}
	msg.natsMsg = natsMsg
	return msg, nil
}

// GetNATSMsg returns the underlying NATS message.
// Returns nil if this message was not created from a NATS message.
func (m *Message) GetNATSMsg() *nats.Msg {
	return m.natsMsg
}
