package bundle

import (
	"dtn_chat/internal/model"

	"github.com/fxamacker/cbor/v2"
)

// bibeBundleIndex is the position of the encapsulated bundle in a BIBE
// protocol data unit [transmission id, retransmission time, bundle].
const bibeBundleIndex = 2

// Encapsulate wraps b in a BIBE protocol data unit.
func Encapsulate(b *Bundle, transmissionID uint64) ([]byte, error) {
	data, err := b.Marshal()
	if err != nil {
		return nil, err
	}
	return cbor.Marshal([]any{transmissionID, uint64(0), data})
}

// Decapsulate returns the application payload carried by adu. Payloads not
// flagged as encapsulated bundles are returned as is.
func Decapsulate(adu model.ApplicationDataUnit) ([]byte, bool, error) {
	if !adu.Flags.Has(model.FlagEncapsulatedBundle) {
		return adu.Payload, false, nil
	}

	var container []cbor.RawMessage
	if err := cbor.Unmarshal(adu.Payload, &container); err != nil {
		return nil, true, malformed("container: %v", err)
	}
	if len(container) <= bibeBundleIndex {
		return nil, true, malformed("container has %d elements", len(container))
	}

	var data []byte
	if err := cbor.Unmarshal(container[bibeBundleIndex], &data); err != nil {
		return nil, true, malformed("encapsulated bundle: %v", err)
	}

	b, err := Parse(data)
	if err != nil {
		return nil, true, err
	}
	payload, err := b.PayloadBlock()
	if err != nil {
		return nil, true, err
	}
	return payload.Data, true, nil
}
