package trackerpb

import "github.com/golang/protobuf/proto"

// Marshal and Unmarshal are the two calls infrastructure/tracker needs;
// kept as thin wrappers so callers never import golang/protobuf directly.
func Marshal(m proto.Message) ([]byte, error) {
	return proto.Marshal(m)
}

func Unmarshal(data []byte, m proto.Message) error {
	return proto.Unmarshal(data, m)
}
