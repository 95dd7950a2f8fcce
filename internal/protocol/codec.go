package protocol

import (
	"encoding/json"
	"fmt"
)

// Marshal validates the envelope and serializes req as a flat JSON object.
func Marshal(req *Request) ([]byte, error) {
	body, err := flatten(req)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return data, nil
}

func flatten(req *Request) (map[string]any, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
	}
	if err := req.Envelope.Validate(); err != nil {
		return nil, err
	}

	outputKey := req.OutputKey
	if outputKey == "" {
		outputKey = KeyOutputColumn
	}

	body := make(map[string]any, len(req.Params)+4)
	for k, v := range req.Params {
		body[k] = v
	}
	for _, key := range []string{KeyBaseID, KeyTableID, KeyRecordID, outputKey} {
		if _, clash := body[key]; clash {
			return nil, fmt.Errorf("param %q collides with envelope key", key)
		}
	}
	body[KeyBaseID] = req.BaseID
	body[KeyTableID] = req.TableID
	body[KeyRecordID] = req.RecordID
	body[outputKey] = req.OutputField
	return body, nil
}

// Validate reports the first missing identifier.
func (e Envelope) Validate() error {
	switch {
	case e.BaseID == "":
		return fmt.Errorf("request missing required field: %s", KeyBaseID)
	case e.TableID == "":
		return fmt.Errorf("request missing required field: %s", KeyTableID)
	case e.RecordID == "":
		return fmt.Errorf("request missing required field: %s", KeyRecordID)
	case e.OutputField == "":
		key := e.OutputKey
		if key == "" {
			key = KeyOutputColumn
		}
		return fmt.Errorf("request missing required field: %s", key)
	}
	return nil
}
