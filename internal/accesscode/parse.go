package accesscode

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type entry struct {
	owner string
	code  string
}

// parse decodes a flat JSON object of owner→code pairs, keeping document
// order so that "first occurrence wins" is well defined. Non-string values are
// returned with an empty code and rejected by the caller.
func parse(r io.Reader) ([]entry, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("access codes must be a JSON object")
	}

	var entries []entry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		owner, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected key %v", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("value for %q: %w", owner, err)
		}
		var code string
		if err := json.Unmarshal(raw, &code); err != nil {
			code = ""
		}
		entries = append(entries, entry{owner: owner, code: strings.TrimSpace(code)})
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return entries, nil
}
