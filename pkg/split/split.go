// Package split decomposes a message payload into an ordered sequence of
// sub-messages.
package split

import (
	"context"
	"fmt"

	ferrors "github.com/wehubfusion/foreach/pkg/errors"
	"github.com/wehubfusion/foreach/pkg/expression"
	"github.com/wehubfusion/foreach/pkg/iteration"
	"github.com/wehubfusion/foreach/pkg/message"
)

// Kind identifies a split strategy
type Kind string

const (
	// KindAuto selects the strategy from the other options
	KindAuto Kind = ""
	// KindCollection splits a collection per element, a map per entry
	KindCollection Kind = "collection"
	// KindGrouped splits a collection into groups of BatchSize elements
	KindGrouped Kind = "grouped"
	// KindMapEntry splits a map per entry and rejects anything else
	KindMapEntry Kind = "map-entry"
	// KindExpression splits the result of a non-structural expression
	KindExpression Kind = "expression"
	// KindStructural splits the branches selected by a structural expression
	KindStructural Kind = "structural"
)

// ParseKind parses a split kind name. "map" is accepted for KindMapEntry.
func ParseKind(name string) (Kind, error) {
	switch Kind(name) {
	case KindAuto, KindCollection, KindGrouped, KindMapEntry, KindExpression, KindStructural:
		return Kind(name), nil
	case "map":
		return KindMapEntry, nil
	}
	return "", fmt.Errorf("unknown split kind %q", name)
}

// Strategy converts one message into a sequence of sub-messages.
type Strategy interface {
	Split(ctx context.Context, msg *message.Message) (*iteration.Sequence, error)
	Kind() Kind
}

// Options configures strategy selection
type Options struct {
	// Expression selects the collection to split; empty splits the payload
	Expression string
	// BatchSize is the number of elements per sub-message
	BatchSize int
	// Kind forces a strategy; KindAuto derives it from the other options
	Kind Kind
	// Evaluators evaluates Expression; required when Expression is set
	Evaluators *expression.Registry
}

// New selects and builds the strategy described by opts.
// All configuration errors are reported here, never at split time.
func New(opts Options) (Strategy, error) {
	if opts.BatchSize <= 0 {
		return nil, ferrors.Configuration(fmt.Sprintf("invalid batch size %d", opts.BatchSize), ferrors.ErrInvalidBatchSize)
	}

	if opts.Expression == "" {
		switch opts.Kind {
		case KindMapEntry:
			if opts.BatchSize > 1 {
				return nil, ferrors.Configuration("map entry split", ferrors.ErrGroupedMapSplit)
			}
			return mapEntryStrategy{}, nil
		case KindAuto, KindCollection, KindGrouped:
			if opts.BatchSize > 1 {
				return groupedStrategy{size: opts.BatchSize}, nil
			}
			if opts.Kind == KindGrouped {
				return groupedStrategy{size: 1}, nil
			}
			return collectionStrategy{}, nil
		default:
			return nil, ferrors.Configuration(fmt.Sprintf("split kind %q requires an expression", opts.Kind), nil)
		}
	}

	if opts.Evaluators == nil {
		return nil, ferrors.Configuration("an expression split requires an evaluator registry", nil)
	}
	expr, err := expression.Parse(opts.Expression)
	if err != nil {
		return nil, ferrors.Configuration("invalid split expression", err)
	}

	structure, structural := opts.Evaluators.Structure(expr.Language)
	switch opts.Kind {
	case KindAuto:
	case KindExpression:
		structural = false
	case KindStructural:
		if !structural {
			return nil, ferrors.Configuration(fmt.Sprintf("language %q is not structural", expr.Language), ferrors.ErrPayloadNotStructural)
		}
	default:
		return nil, ferrors.Configuration(fmt.Sprintf("split kind %q does not take an expression", opts.Kind), nil)
	}

	if structural && structure.BranchLanguage != "" {
		expr = expr.WithLanguage(structure.BranchLanguage)
	}
	if err := opts.Evaluators.Compile(expr); err != nil {
		return nil, ferrors.Configuration("invalid split expression", err)
	}

	return expressionStrategy{
		expr:       expr,
		evaluators: opts.Evaluators,
		batch:      opts.BatchSize,
		structural: structural,
	}, nil
}
