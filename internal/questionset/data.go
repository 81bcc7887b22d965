// Package questionset provides the question-set components driven by the
// session controller, and the loaders that read their data from disk.
package questionset

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Item is one question of a set. An item without options and without an
// answer is free text and is recorded ungraded.
type Item struct {
	ID      string   `json:"id" yaml:"id"`
	Prompt  string   `json:"prompt" yaml:"prompt"`
	Options []string `json:"options,omitempty" yaml:"options,omitempty"`
	Answer  string   `json:"answer,omitempty" yaml:"answer,omitempty"`
}

// FreeText reports whether the item has no key to grade against.
func (it Item) FreeText() bool {
	return it.Answer == "" && len(it.Options) == 0
}

// Data is the content of one set file.
type Data struct {
	SetID   int    `json:"setId" yaml:"setId"`
	Type    string `json:"type" yaml:"type"`
	Title   string `json:"title" yaml:"title"`
	Passage string `json:"passage,omitempty" yaml:"passage,omitempty"`
	Audio   string `json:"audio,omitempty" yaml:"audio,omitempty"`
	Items   []Item `json:"items" yaml:"items"`
}

// ParseData decodes a set file. YAML is used when isYAML is set, JSON
// otherwise. Missing type, set id and item ids are filled from typ and setID.
func ParseData(raw []byte, isYAML bool, typ string, setID int) (*Data, error) {
	var d Data
	var err error
	if isYAML {
		err = yaml.Unmarshal(raw, &d)
	} else {
		err = json.Unmarshal(raw, &d)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s set %d: %w", typ, setID, err)
	}

	if d.Type == "" {
		d.Type = typ
	}
	if d.SetID == 0 {
		d.SetID = setID
	}
	if d.Type != typ || d.SetID != setID {
		return nil, fmt.Errorf("set file declares %s/%d, expected %s/%d", d.Type, d.SetID, typ, setID)
	}
	if len(d.Items) == 0 {
		return nil, fmt.Errorf("%s set %d: %w", typ, setID, ErrEmptySet)
	}

	seen := make(map[string]bool, len(d.Items))
	for i := range d.Items {
		it := &d.Items[i]
		if it.ID == "" {
			it.ID = fmt.Sprintf("%s-%d-%d", typ, setID, i+1)
		}
		if seen[it.ID] {
			return nil, fmt.Errorf("%s set %d: duplicate item id %q", typ, setID, it.ID)
		}
		seen[it.ID] = true
		if it.Answer != "" && len(it.Options) > 0 && !hasOption(it.Options, it.Answer) {
			return nil, fmt.Errorf("%s set %d: item %q answer %q is not an option", typ, setID, it.ID, it.Answer)
		}
	}
	return &d, nil
}

func hasOption(options []string, answer string) bool {
	for _, o := range options {
		if matches(o, answer) {
			return true
		}
	}
	return false
}

// matches compares a response with a key, ignoring case and surrounding
// space.
func matches(response, key string) bool {
	return strings.EqualFold(strings.TrimSpace(response), strings.TrimSpace(key))
}
