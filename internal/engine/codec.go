package engine

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/flowkit/flowcore/internal/domain"
)

// MsgpackCodec is the default Codec, matching the teacher's choice of
// msgpack for compact wire/storage encoding (go.mod: vmihailenco/msgpack/v5).
type MsgpackCodec struct{}

func (MsgpackCodec) Encode(v *domain.Vars) ([]byte, error) {
	return msgpack.Marshal(v.All())
}

func (MsgpackCodec) Decode(b []byte) (*domain.Vars, error) {
	if len(b) == 0 {
		return domain.NewVars(nil), nil
	}
	var m map[string]any
	if err := msgpack.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return domain.NewVars(m), nil
}
