package protocol

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dungeongate/bancho/internal/codec"
)

// DecodeFunc decodes a request payload into a typed value. A nil value with
// a nil error means the packet carries no payload.
type DecodeFunc func(r *codec.Reader) (any, error)

// EncodeFunc encodes a typed value into a response payload.
type EncodeFunc func(w *codec.Writer, v any) error

// Registry holds per-protocol-version decoder and encoder tables, keyed by
// packet id, with nearest-version resolution for client versions that were
// never explicitly registered.
type Registry struct {
	mu       sync.RWMutex
	decoders map[int]map[RequestID]DecodeFunc
	encoders map[int]map[ResponseID]EncodeFunc
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		decoders: make(map[int]map[RequestID]DecodeFunc),
		encoders: make(map[int]map[ResponseID]EncodeFunc),
	}
}

// RegisterDecoder adds or replaces the decoder for (version, id).
func (r *Registry) RegisterDecoder(version int, id RequestID, fn DecodeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.decoders[version] == nil {
		r.decoders[version] = make(map[RequestID]DecodeFunc)
	}
	r.decoders[version][id] = fn
}

// RegisterEncoder adds or replaces the encoder for (version, id).
func (r *Registry) RegisterEncoder(version int, id ResponseID, fn EncodeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.encoders[version] == nil {
		r.encoders[version] = make(map[ResponseID]EncodeFunc)
	}
	r.encoders[version][id] = fn
}

// nearestVersion picks the registered version closest to observed, ties
// broken toward the older (smaller) version.
func nearestVersion(versions []int, observed int) (int, bool) {
	if len(versions) == 0 {
		return 0, false
	}
	best := versions[0]
	bestDist := abs(best - observed)
	for _, v := range versions[1:] {
		d := abs(v - observed)
		if d < bestDist || (d == bestDist && v < best) {
			best = v
			bestDist = d
		}
	}
	return best, true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// ResolveVersion returns the registered table version nearest to observed,
// considering both decoder and encoder tables. Returns false if no version
// has been registered at all.
func (r *Registry) ResolveVersion(observed int) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[int]struct{})
	for v := range r.decoders {
		seen[v] = struct{}{}
	}
	for v := range r.encoders {
		seen[v] = struct{}{}
	}
	if len(seen) == 0 {
		return 0, false
	}
	versions := make([]int, 0, len(seen))
	for v := range seen {
		versions = append(versions, v)
	}
	sort.Ints(versions)
	return nearestVersion(versions, observed)
}

// Decode decodes payload for (version, id). ok is false when this table
// version has no decoder for id, in which case the packet must be treated
// as a no-op with no payload.
func (r *Registry) Decode(version int, id RequestID, payload []byte) (value any, ok bool, err error) {
	r.mu.RLock()
	table, hasTable := r.decoders[version]
	r.mu.RUnlock()
	if !hasTable {
		return nil, false, nil
	}
	fn, hasFn := table[id]
	if !hasFn {
		return nil, false, nil
	}
	if fn == nil {
		return nil, true, nil
	}
	reader := codec.NewReader(payload)
	v, err := fn(reader)
	if err != nil {
		return nil, true, fmt.Errorf("decode packet %d (version %d): %w", id, version, err)
	}
	return v, true, nil
}

// Encode encodes value for (version, id) using that version's encoder table.
func (r *Registry) Encode(version int, id ResponseID, value any) ([]byte, error) {
	r.mu.RLock()
	table, hasTable := r.encoders[version]
	r.mu.RUnlock()
	if !hasTable {
		return nil, fmt.Errorf("no encoder table registered for version %d", version)
	}
	fn, hasFn := table[id]
	if !hasFn {
		return nil, fmt.Errorf("no encoder registered for packet %d in version %d", id, version)
	}
	w := codec.NewWriter()
	if err := fn(w, value); err != nil {
		return nil, fmt.Errorf("encode packet %d (version %d): %w", id, version, err)
	}
	return w.Bytes(), nil
}

// CodecTables is the (decoders, encoders) pair a Session selects at login.
type CodecTables struct {
	Version  int
	Registry *Registry
}

// EncodeFrame encodes value for id and wraps it into an uncompressed Frame.
func (t CodecTables) EncodeFrame(id ResponseID, value any) (Frame, error) {
	payload, err := t.Registry.Encode(t.Version, id, value)
	if err != nil {
		return Frame{}, err
	}
	return Frame{ID: uint16(id), Payload: payload}, nil
}
