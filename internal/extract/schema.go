package extract

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// The extraction output carries no fixed schema; the only structural
// contract is "a JSON object with at least one property". Anything else is
// recorded as an extraction failure for the document.
var payloadSchema = jsonschema.MustCompileString("payload.json", `{
  "type": "object",
  "minProperties": 1
}`)

func ValidatePayload(raw []byte) error {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("payload is not valid JSON: %w", err)
	}
	if err := payloadSchema.Validate(decoded); err != nil {
		return fmt.Errorf("payload failed structural check: %w", err)
	}
	return nil
}
