// Package codec provides the pluggable marshal/unmarshal strategies used to
// serialize an Instruction body. Adapted from the teacher's protocol/codec
// registry; the protobuf codec was dropped (see DESIGN.md) since Instruction
// has no protobuf schema of its own.
package codec

// Codec defines a simple interface for marshaling typed messages.
// Implementations should be deterministic and safe for cross-process
// exchange.
type Codec interface {
	ContentType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Registry maps content-type strings to codecs.
type Registry struct{ byType map[string]Codec }

// NewRegistry constructs a registry preloaded with the JSON codec, which
// needs no initialization and never errors. CBOR is registered explicitly
// via Register(CBOR()) since building it can fail.
func NewRegistry() *Registry {
	r := &Registry{byType: make(map[string]Codec)}
	r.Register(JSON())
	return r
}

// Register adds or replaces a codec.
func (r *Registry) Register(c Codec) { r.byType[c.ContentType()] = c }

// Get returns a codec by content type, or nil.
func (r *Registry) Get(contentType string) Codec { return r.byType[contentType] }
