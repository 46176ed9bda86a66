package split

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	ferrors "github.com/wehubfusion/foreach/pkg/errors"
	"github.com/wehubfusion/foreach/pkg/iteration"
	"github.com/wehubfusion/foreach/pkg/message"
)

type collectionStrategy struct{}

func (collectionStrategy) Kind() Kind { return KindCollection }

func (collectionStrategy) Split(_ context.Context, msg *message.Message) (*iteration.Sequence, error) {
	return splitValue(msg, msg.Payload, 1)
}

type groupedStrategy struct {
	size int
}

func (groupedStrategy) Kind() Kind { return KindGrouped }

func (s groupedStrategy) Split(_ context.Context, msg *message.Message) (*iteration.Sequence, error) {
	return splitValue(msg, msg.Payload, s.size)
}

type mapEntryStrategy struct{}

func (mapEntryStrategy) Kind() Kind { return KindMapEntry }

func (mapEntryStrategy) Split(_ context.Context, msg *message.Message) (*iteration.Sequence, error) {
	entries, ok := mapEntries(msg.Payload)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ferrors.ErrNotAMap, msg.Payload)
	}
	return entrySequence(msg, entries), nil
}

// splitValue splits value into sub-messages derived from parent.
// Slices and arrays split per element or per group of batch elements.
// Maps split per entry and cannot be grouped. Anything else, nil included,
// is a single element.
func splitValue(parent *message.Message, value interface{}, batch int) (*iteration.Sequence, error) {
	if entries, ok := mapEntries(value); ok {
		if batch > 1 {
			return nil, ferrors.Configuration(fmt.Sprintf("cannot group map entries in batches of %d", batch), ferrors.ErrGroupedMapSplit)
		}
		return entrySequence(parent, entries), nil
	}

	elements := elementsOf(value)
	if batch <= 1 {
		return iteration.NewSequence(len(elements), func(i int) *message.Message {
			return message.NewChildMessage(parent, elements[i])
		}), nil
	}

	groups := (len(elements) + batch - 1) / batch
	return iteration.NewSequence(groups, func(i int) *message.Message {
		start := i * batch
		end := start + batch
		if end > len(elements) {
			end = len(elements)
		}
		group := make([]interface{}, end-start)
		copy(group, elements[start:end])
		return message.NewChildMessage(parent, group)
	}), nil
}

// elementsOf returns the elements of a slice or array, or value as the
// only element. []byte is a single element.
func elementsOf(value interface{}) []interface{} {
	switch v := value.(type) {
	case []interface{}:
		return v
	case []byte, string:
		return []interface{}{v}
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []interface{}{value}
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

type entry struct {
	key   interface{}
	value interface{}
}

// mapEntries returns the entries of a map ordered by the string form of
// their keys.
func mapEntries(value interface{}) ([]entry, bool) {
	if value == nil {
		return nil, false
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Map {
		return nil, false
	}
	entries := make([]entry, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		entries = append(entries, entry{key: iter.Key().Interface(), value: iter.Value().Interface()})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return fmt.Sprint(entries[i].key) < fmt.Sprint(entries[j].key)
	})
	return entries, true
}

func entrySequence(parent *message.Message, entries []entry) *iteration.Sequence {
	return iteration.NewSequence(len(entries), func(i int) *message.Message {
		sub := message.NewChildMessage(parent, entries[i].value)
		sub.SetProperty(message.MapEntryKey, entries[i].key)
		return sub
	})
}
