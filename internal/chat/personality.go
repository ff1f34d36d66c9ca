package chat

import (
	"sort"
	"strings"

	"github.com/hpungsan/banter/internal/errors"
)

// Personality is a persona id with the instruction text sent to the backend.
type Personality struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Instruction string `json:"instruction"`
}

var builtinPersonalities = []Personality{
	{ID: "default", Label: "Default", Instruction: ""},
	{ID: "friendly", Label: "Friendly", Instruction: "You are a warm, friendly assistant. Keep a kind and encouraging tone."},
	{ID: "professional", Label: "Professional", Instruction: "You are a precise, professional assistant. Answer formally and to the point."},
	{ID: "funny", Label: "Funny", Instruction: "You are a witty assistant who answers with light humor while staying helpful."},
	{ID: "concise", Label: "Concise", Instruction: "Answer as briefly as possible. Use short sentences and no filler."},
}

// Personalities is the static persona table: the built-in set overlaid by configured entries.
type Personalities struct {
	list []Personality
}

// NewPersonalities builds the table. overrides maps ids to instruction text; unknown ids are added
// after the built-ins in sorted order, known ids have their instruction replaced.
func NewPersonalities(overrides map[string]string) *Personalities {
	list := make([]Personality, len(builtinPersonalities))
	copy(list, builtinPersonalities)

	extra := make([]string, 0)
	for rawID, instruction := range overrides {
		id := Normalize(rawID)
		if id == "" {
			continue
		}
		found := false
		for i := range list {
			if list[i].ID == id {
				list[i].Instruction = instruction
				found = true
				break
			}
		}
		if !found {
			extra = append(extra, id)
		}
	}

	sort.Strings(extra)
	for _, id := range extra {
		list = append(list, Personality{ID: id, Label: titleCase(id), Instruction: lookupOverride(overrides, id)})
	}

	return &Personalities{list: list}
}

// lookupOverride finds the override whose normalized key is id.
func lookupOverride(overrides map[string]string, id string) string {
	for k, v := range overrides {
		if Normalize(k) == id {
			return v
		}
	}
	return ""
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// All returns the personas in display order.
func (p *Personalities) All() []Personality {
	out := make([]Personality, len(p.list))
	copy(out, p.list)
	return out
}

// Lookup returns the persona with the given id.
func (p *Personalities) Lookup(id string) (Personality, error) {
	norm := Normalize(id)
	for _, ps := range p.list {
		if ps.ID == norm {
			return ps, nil
		}
	}
	return Personality{}, errors.NewUnknownPersonality(id)
}

// Next returns the id after id in display order, wrapping around.
func (p *Personalities) Next(id string) string {
	for i, ps := range p.list {
		if ps.ID == id {
			return p.list[(i+1)%len(p.list)].ID
		}
	}
	return p.list[0].ID
}
