package reference

import "encoding/json"

// skipMarker is how the Skip sentinel round-trips through JSON (spec.md
// §8 invariant 5: checkpoint round-trip must be byte-equal). A plain `null`
// would be ambiguous with a genuinely-nil leaf.
const skipMarker = "__skip__"

// wireReference is Reference's JSON wire shape.
type wireReference struct {
	Axes        []string        `json:"axes"`
	Shape       []int           `json:"shape"`
	Data        json.RawMessage `json:"data"`
	ElementType ElementTypeHint `json:"element_type,omitempty"`
}

// MarshalJSON encodes r with Skip sentinels as {"__skip__":true}, depth-
// aware so a genuinely-nil leaf still encodes as `null`.
func (r *Reference) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	data, err := marshalData(r.Data, len(r.Axes))
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireReference{
		Axes:        r.Axes,
		Shape:       r.Shape,
		Data:        data,
		ElementType: r.ElementType,
	})
}

func marshalData(data any, depth int) (json.RawMessage, error) {
	if IsSkip(data) {
		return json.Marshal(map[string]bool{skipMarker: true})
	}
	if depth == 0 {
		return json.Marshal(data)
	}
	slice, ok := data.([]any)
	if !ok {
		return json.Marshal(data)
	}
	raws := make([]json.RawMessage, len(slice))
	for i, v := range slice {
		raw, err := marshalData(v, depth-1)
		if err != nil {
			return nil, err
		}
		raws[i] = raw
	}
	return json.Marshal(raws)
}

// UnmarshalJSON decodes a Reference, restoring Skip sentinels.
func (r *Reference) UnmarshalJSON(b []byte) error {
	var wire wireReference
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	data, err := unmarshalData(wire.Data, len(wire.Axes))
	if err != nil {
		return err
	}
	r.Axes = wire.Axes
	r.Shape = wire.Shape
	r.Data = data
	r.ElementType = wire.ElementType
	return nil
}

func unmarshalData(raw json.RawMessage, depth int) (any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if depth == 0 {
		var leaf any
		if isSkipMarker(raw) {
			return Skip, nil
		}
		if err := json.Unmarshal(raw, &leaf); err != nil {
			return nil, err
		}
		return leaf, nil
	}
	if isSkipMarker(raw) {
		return Skip, nil
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(raw, &raws); err != nil {
		return nil, err
	}
	out := make([]any, len(raws))
	for i, rr := range raws {
		v, err := unmarshalData(rr, depth-1)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func isSkipMarker(raw json.RawMessage) bool {
	var m map[string]bool
	if err := json.Unmarshal(raw, &m); err != nil {
		return false
	}
	return len(m) == 1 && m[skipMarker]
}
