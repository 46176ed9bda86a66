package foreach

import (
	ferrors "github.com/wehubfusion/foreach/pkg/errors"
	"github.com/wehubfusion/foreach/pkg/expression"
	"github.com/wehubfusion/foreach/pkg/message"
	"github.com/wehubfusion/foreach/pkg/transformer"
)

// codec converts a textual payload to its tree form before iteration and
// back afterwards. A nil codec never encodes.
type codec struct {
	encoder transformer.Transformer
	decoder transformer.Transformer
}

// resolveCodec looks up both directions between the textual and tree
// representations of a structural language.
func resolveCodec(structure expression.Structure, registry *transformer.Registry) (*codec, error) {
	encoder, err := registry.Lookup(structure.Text, structure.Tree)
	if err != nil {
		return nil, ferrors.Configuration("no payload encoder", err)
	}
	decoder, err := registry.Lookup(structure.Tree, structure.Text)
	if err != nil {
		return nil, ferrors.Configuration("no payload decoder", err)
	}
	return &codec{encoder: encoder, decoder: decoder}, nil
}

func (c *codec) needsEncode(msg *message.Message) bool {
	if c == nil {
		return false
	}
	switch msg.Payload.(type) {
	case string, []byte:
		return true
	}
	return false
}

// encode replaces the payload with its tree form. It reports whether the
// original payload was a []byte.
func (c *codec) encode(msg *message.Message) (bool, error) {
	_, wasBytes := msg.Payload.([]byte)
	tree, err := c.encoder.Transform(msg.Payload)
	if err != nil {
		return false, ferrors.Transform("failed to encode payload", err)
	}
	msg.SetPayload(tree)
	return wasBytes, nil
}

// decode replaces the payload with its textual form, as a []byte when
// asBytes is set.
func (c *codec) decode(msg *message.Message, asBytes bool) error {
	text, err := c.decoder.Transform(msg.Payload)
	if err != nil {
		return ferrors.Transform("failed to decode payload", err)
	}
	if s, ok := text.(string); ok && asBytes {
		text = []byte(s)
	}
	msg.SetPayload(text)
	return nil
}
