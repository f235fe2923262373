package recurrence

import "encoding/json"

// MarshalJSON encodes the rule as its list of names.
func (r Rule) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Names())
}

func (r *Rule) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	parsed, err := Parse(names)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
