package contracts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var ErrUnknownActionType = errors.New("unknown action type")
var ErrMalformedEnvelope = errors.New("malformed envelope")

// Envelope is the versioned wire wrapper around exactly one action.
type Envelope struct {
	Version string `json:"version"`
	Action  Action `json:"action"`
}

// NewAction returns an empty variant for t, ready to be decoded into.
func NewAction(t ActionType) (Action, error) {
	switch t {
	case ActionListingAdd:
		return &ListingAdd{}, nil
	case ActionListingImageAdd:
		return &ListingImageAdd{}, nil
	case ActionMarketAdd:
		return &MarketAdd{}, nil
	case ActionMarketImageAdd:
		return &MarketImageAdd{}, nil
	case ActionBid:
		return &Bid{}, nil
	case ActionBidAccept:
		return &BidAccept{}, nil
	case ActionBidReject:
		return &BidReject{}, nil
	case ActionBidCancel:
		return &BidCancel{}, nil
	case ActionEscrowLock:
		return &EscrowLock{}, nil
	case ActionEscrowComplete:
		return &EscrowComplete{}, nil
	case ActionOrderShip:
		return &OrderShip{}, nil
	case ActionEscrowRelease:
		return &EscrowRelease{}, nil
	case ActionEscrowRefund:
		return &EscrowRefund{}, nil
	case ActionProposalAdd:
		return &ProposalAdd{}, nil
	case ActionVote:
		return &Vote{}, nil
	case ActionCommentAdd:
		return &CommentAdd{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownActionType, t)
	}
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	var raw struct {
		Version string          `json:"version"`
		Action  json.RawMessage `json:"action"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.Action) == 0 || bytes.Equal(raw.Action, []byte("null")) {
		return fmt.Errorf("%w: action is missing", ErrMalformedEnvelope)
	}
	var head struct {
		Type ActionType `json:"type"`
	}
	if err := json.Unmarshal(raw.Action, &head); err != nil {
		return err
	}
	action, err := NewAction(head.Type)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw.Action, action); err != nil {
		return err
	}
	e.Version = raw.Version
	e.Action = action
	return nil
}

// Marshal returns the exact bytes that go on the wire.
func (e Envelope) Marshal() ([]byte, error) {
	if e.Action == nil {
		return nil, fmt.Errorf("%w: action is missing", ErrMalformedEnvelope)
	}
	return json.Marshal(e)
}

// Size is the serialized length used for budget checks.
func (e Envelope) Size() (int, error) {
	payload, err := e.Marshal()
	if err != nil {
		return 0, err
	}
	return len(payload), nil
}

// DecodeEnvelope checks raw against the envelope schema, then decodes it.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	if err := ValidateEnvelopeJSON(raw); err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return env, nil
}

const envelopeSchemaURL = "https://bazaar-mp.schemas.local/envelope.schema.json"

const envelopeSchemaTemplate = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["version", "action"],
  "properties": {
    "version": {"type": "string", "minLength": 1},
    "action": {
      "type": "object",
      "required": ["type", "hash", "generated"],
      "properties": {
        "type": {"enum": %s},
        "hash": {"type": "string", "minLength": 1},
        "generated": {"type": "integer", "minimum": 0},
        "objects": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["key", "value"],
            "properties": {"key": {"type": "string"}, "value": {"type": "string"}}
          }
        }
      }
    }
  }
}`

var envelopeSchema = mustCompileEnvelopeSchema()

func mustCompileEnvelopeSchema() *jsonschema.Schema {
	types, err := json.Marshal(ActionTypes)
	if err != nil {
		panic(err)
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(envelopeSchemaURL, strings.NewReader(fmt.Sprintf(envelopeSchemaTemplate, types))); err != nil {
		panic(fmt.Sprintf("envelope schema load failed: %v", err))
	}
	return c.MustCompile(envelopeSchemaURL)
}

// ValidateEnvelopeJSON rejects payloads whose outer shape is not an envelope.
func ValidateEnvelopeJSON(raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if err := envelopeSchema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return nil
}
