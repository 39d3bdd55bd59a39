package dpp

import "context"

// MemoryKind classifies what the engine materialises while serving a call.
type MemoryKind uint8

const (
	// MemoryKindRawData is one byte of serialized input.
	MemoryKindRawData MemoryKind = iota + 1
	// MemoryKindStringByte is one byte of a decoded string or byte string.
	MemoryKindStringByte
	// MemoryKindValue is one decoded scalar.
	MemoryKindValue
	// MemoryKindMapEntry is one entry of a decoded map.
	MemoryKindMapEntry
	// MemoryKindListElement is one element of a decoded array.
	MemoryKindListElement
	// MemoryKindDocument is one document under validation.
	MemoryKindDocument
	// MemoryKindSchemaProperty is one property of a document schema.
	MemoryKindSchemaProperty
	// MemoryKindValidationError is one consensus error built by validation.
	MemoryKindValidationError
)

// MemoryWeights are the bytes charged per unit of intensity of each kind.
// Kinds without a weight are free.
type MemoryWeights map[MemoryKind]uint64

// DefaultMemoryWeights approximate the heap footprint of decoded values.
var DefaultMemoryWeights = MemoryWeights{
	MemoryKindRawData:         1,
	MemoryKindStringByte:      1,
	MemoryKindValue:           16,
	MemoryKindMapEntry:        64,
	MemoryKindListElement:     16,
	MemoryKindDocument:        256,
	MemoryKindSchemaProperty:  96,
	MemoryKindValidationError: 128,
}

// ExecutionMeter bounds the resources the engine consumes for a call.
// The engine charges memory as it materialises data and calls Checkpoint
// inside loops so that a caller can abort long-running work.
type ExecutionMeter interface {
	MeterMemory(kind MemoryKind, intensity uint64) error
	Checkpoint() error
}

type meterKey struct{}

type noopMeter struct{}

func (noopMeter) MeterMemory(MemoryKind, uint64) error { return nil }
func (noopMeter) Checkpoint() error                    { return nil }

// WithExecutionMeter returns a context carrying m.
func WithExecutionMeter(ctx context.Context, m ExecutionMeter) context.Context {
	return context.WithValue(ctx, meterKey{}, m)
}

// MeterFromContext returns the meter carried by ctx, or one that never
// fails.
func MeterFromContext(ctx context.Context) ExecutionMeter {
	if m, ok := ctx.Value(meterKey{}).(ExecutionMeter); ok {
		return m
	}
	return noopMeter{}
}

// checkpoint reports a meter interruption or context cancellation.
func checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return MeterFromContext(ctx).Checkpoint()
}

// meterValue charges m for a decoded value and everything it contains.
func meterValue(m ExecutionMeter, v any) error {
	switch v := v.(type) {
	case nil:
		return nil
	case string:
		return m.MeterMemory(MemoryKindStringByte, uint64(len(v)))
	case []byte:
		return m.MeterMemory(MemoryKindStringByte, uint64(len(v)))
	case map[string]any:
		if err := m.MeterMemory(MemoryKindMapEntry, uint64(len(v))); err != nil {
			return err
		}
		for key, elem := range v {
			if err := m.MeterMemory(MemoryKindStringByte, uint64(len(key))); err != nil {
				return err
			}
			if err := meterValue(m, elem); err != nil {
				return err
			}
		}
		return nil
	case map[any]any:
		if err := m.MeterMemory(MemoryKindMapEntry, uint64(len(v))); err != nil {
			return err
		}
		for key, elem := range v {
			if err := meterValue(m, key); err != nil {
				return err
			}
			if err := meterValue(m, elem); err != nil {
				return err
			}
		}
		return nil
	case []any:
		if err := m.MeterMemory(MemoryKindListElement, uint64(len(v))); err != nil {
			return err
		}
		for _, elem := range v {
			if err := meterValue(m, elem); err != nil {
				return err
			}
		}
		return nil
	default:
		return m.MeterMemory(MemoryKindValue, 1)
	}
}
