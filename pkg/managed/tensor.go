package managed

import "maps"

// Well-known tensor parameter keys.
const (
	ParamName              = "name"
	ParamHtype             = "htype"
	ParamDtype             = "dtype"
	ParamDim               = "dim"
	ParamSampleCompression = "sample_compression"
	ParamChunkCompression  = "chunk_compression"
	ParamMaxChunkSize      = "max_chunk_size"
	ParamCreateIDTensor    = "create_id_tensor"
	ParamCreateSampleInfo  = "create_sample_info_tensor"
	ParamCreateShapeTensor = "create_shape_tensor"
)

// TensorParams describes one named column of a store's schema, in the same format used when the
// store is created. Unknown keys are kept as-is.
type TensorParams map[string]Value

// NewTensorParams builds tensor parameters with a name and htype.
func NewTensorParams(name, htype string) TensorParams {
	return TensorParams{
		ParamName:  String(name),
		ParamHtype: String(htype),
	}
}

// With returns a copy of p with key set to v.
func (p TensorParams) With(key string, v Value) TensorParams {
	c := maps.Clone(p)
	if c == nil {
		c = TensorParams{}
	}
	c[key] = v
	return c
}

func (p TensorParams) str(key string) string {
	s, _ := p[key].AsString()
	return s
}

// Name returns the tensor name, or "" when missing.
func (p TensorParams) Name() string { return p.str(ParamName) }

// Htype returns the tensor htype, or "" when missing.
func (p TensorParams) Htype() string { return p.str(ParamHtype) }

// Dtype returns the tensor dtype, or "" when missing or null.
func (p TensorParams) Dtype() string { return p.str(ParamDtype) }

// SampleCompression returns the sample compression, or "" when missing or null.
func (p TensorParams) SampleCompression() string { return p.str(ParamSampleCompression) }

// Dim returns the declared embedding dimension, if any.
func (p TensorParams) Dim() (int, bool) {
	d, ok := p[ParamDim].AsInt()
	return int(d), ok && d > 0
}

func (p TensorParams) Equal(o TensorParams) bool {
	return maps.EqualFunc(p, o, Value.Equal)
}

// Clone returns a deep-enough copy of p; Values are immutable so a map copy suffices.
func (p TensorParams) Clone() TensorParams {
	if p == nil {
		return nil
	}
	return maps.Clone(p)
}

// CloneTensors copies a schema so callers can keep it independently of the source.
func CloneTensors(ts []TensorParams) []TensorParams {
	if ts == nil {
		return nil
	}
	out := make([]TensorParams, len(ts))
	for i, t := range ts {
		out[i] = t.Clone()
	}
	return out
}

func equalTensors(a, b []TensorParams) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// DefaultTensorParams is the schema used when a store is initialized without tensor_params.
func DefaultTensorParams() []TensorParams {
	noExtras := func(p TensorParams) TensorParams {
		p[ParamCreateIDTensor] = Bool(false)
		p[ParamCreateSampleInfo] = Bool(false)
		p[ParamCreateShapeTensor] = Bool(false)
		return p
	}
	embedding := noExtras(NewTensorParams("embedding", "embedding"))
	embedding[ParamDtype] = String("float32")
	embedding[ParamMaxChunkSize] = Int(64 * 1000 * 1000)

	return []TensorParams{
		noExtras(NewTensorParams("text", "text")),
		noExtras(NewTensorParams("metadata", "json")),
		embedding,
		noExtras(NewTensorParams("id", "text")),
	}
}
