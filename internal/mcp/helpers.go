package mcpserver

import "encoding/json"

// parseJSON parses a JSON string into the target type.
func parseJSON(data string, target any) error {
	return json.Unmarshal([]byte(data), target)
}

// roundTrip converts v into target through its JSON form.
func roundTrip(v, target any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

// jsonArg reads a tool argument that clients send either as a JSON
// string or as an already decoded value.
func jsonArg(args map[string]any, key string, target any) (bool, error) {
	switch v := args[key].(type) {
	case nil:
		return false, nil
	case string:
		if v == "" {
			return false, nil
		}
		return true, parseJSON(v, target)
	default:
		return true, roundTrip(v, target)
	}
}
