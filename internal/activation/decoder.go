package activation

import (
	"context"
	"fmt"
	"reflect"

	"github.com/spf13/cast"

	"github.com/vk/stdattr/internal/convention"
)

// Decoder transforms a value read from a container. attrs are the
// attributes of that container.
type Decoder func(ctx context.Context, attrs convention.AttributeStore, value any) (any, error)

// ScaleAndOffset is the name of the builtin decoder applying the
// "scale_factor" and "add_offset" attributes of a container.
const ScaleAndOffset = "scale_and_offset"

// decodeScaleAndOffset returns value*scale_factor + add_offset for numbers
// and numeric slices. Containers carrying neither attribute pass values
// through.
func decodeScaleAndOffset(_ context.Context, attrs convention.AttributeStore, value any) (any, error) {
	if attrs == nil || value == nil {
		return value, nil
	}
	rawScale, hasScale := attrs.Lookup("scale_factor")
	rawOffset, hasOffset := attrs.Lookup("add_offset")
	if !hasScale && !hasOffset {
		return value, nil
	}
	scale, offset := 1.0, 0.0
	var err error
	if hasScale {
		if scale, err = cast.ToFloat64E(rawScale); err != nil {
			return nil, fmt.Errorf("invalid scale_factor: %w", err)
		}
	}
	if hasOffset {
		if offset, err = cast.ToFloat64E(rawOffset); err != nil {
			return nil, fmt.Errorf("invalid add_offset: %w", err)
		}
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]float64, rv.Len())
		for i := range out {
			f, err := cast.ToFloat64E(rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = f*scale + offset
		}
		return out, nil
	}
	f, err := cast.ToFloat64E(value)
	if err != nil {
		return nil, err
	}
	return f*scale + offset, nil
}
