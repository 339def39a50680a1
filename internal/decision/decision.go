// Package decision holds the collective decision schema: the structure a
// leader must produce, its validation rules, and the deterministic repair
// applied when reviewer assignments are missing or broken.
package decision

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
	"strings"
	"unicode"
)

// Decision is one synthesized collective decision. Unknown fields survive a
// parse/serialize round trip through Extra so leaders can attach notes the
// orchestrator does not interpret.
type Decision struct {
	SelectedTitle     string            `json:"selectedTitle"`
	SelectedTrack     string            `json:"selectedTrack"`
	Reason            string            `json:"reason"`
	TaskSplit         map[string]string `json:"taskSplit"`
	ReviewAssignments map[string]string `json:"reviewAssignments,omitempty"`
	EvidencePlan      string            `json:"evidencePlan,omitempty"`
	OptionalEnablers  string            `json:"optionalEnablers,omitempty"`
	CostPlan          string            `json:"costPlan,omitempty"`
	FailureModes      []string          `json:"failureModes,omitempty"`

	// Extra carries fields outside the schema, keyed as they appeared.
	Extra map[string]json.RawMessage `json:"-"`
}

var knownFields = []string{
	"selectedTitle", "selectedTrack", "reason", "taskSplit",
	"reviewAssignments", "evidencePlan", "optionalEnablers", "costPlan",
	"failureModes",
}

// UnmarshalJSON decodes the known schema fields and stashes everything else
// in Extra.
func (d *Decision) UnmarshalJSON(data []byte) error {
	type alias Decision
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range knownFields {
		delete(raw, k)
	}
	if len(raw) > 0 {
		a.Extra = raw
	}
	*d = Decision(a)
	return nil
}

// MarshalJSON re-emits the schema fields plus any Extra passthrough fields.
func (d Decision) MarshalJSON() ([]byte, error) {
	type alias Decision
	data, err := json.Marshal(alias(d))
	if err != nil {
		return nil, err
	}
	if len(d.Extra) == 0 {
		return data, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for k, v := range d.Extra {
		if _, taken := merged[k]; !taken {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// ValidationResult lists every schema problem found in a decision. An empty
// list means the decision is acceptable.
type ValidationResult struct {
	Problems []string
}

// OK reports whether validation passed.
func (r *ValidationResult) OK() bool {
	return len(r.Problems) == 0
}

func (r *ValidationResult) add(format string, args ...any) {
	r.Problems = append(r.Problems, fmt.Sprintf(format, args...))
}

// Validate checks the core schema against the roster: non-blank title, track
// and reason, and a taskSplit with exactly the roster keys, all values
// non-blank and pairwise distinct after normalization. Reviewer assignments
// are checked separately because a broken one is repaired, not rejected.
func (d *Decision) Validate(roster []string) *ValidationResult {
	result := &ValidationResult{}

	if strings.TrimSpace(d.SelectedTitle) == "" {
		result.add("selectedTitle is blank")
	}
	if strings.TrimSpace(d.SelectedTrack) == "" {
		result.add("selectedTrack is blank")
	}
	if strings.TrimSpace(d.Reason) == "" {
		result.add("reason is blank")
	}

	if d.TaskSplit == nil {
		result.add("taskSplit is missing")
		return result
	}

	for _, id := range roster {
		if _, ok := d.TaskSplit[id]; !ok {
			result.add("taskSplit is missing agent %q", id)
		}
	}
	known := make(map[string]bool, len(roster))
	for _, id := range roster {
		known[id] = true
	}

	keys := make([]string, 0, len(d.TaskSplit))
	for k := range d.TaskSplit {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	normalized := make(map[string]string)
	for _, k := range keys {
		if !known[k] {
			result.add("taskSplit has unknown agent %q", k)
			continue
		}
		v := d.TaskSplit[k]
		norm := Normalize(v)
		if norm == "" {
			result.add("taskSplit value for %q is blank", k)
			continue
		}
		if prev, dup := normalized[norm]; dup {
			result.add("taskSplit values for %q and %q collide after normalization", prev, k)
			continue
		}
		normalized[norm] = k
	}

	return result
}

// ReviewsValid reports whether reviewAssignments covers exactly the roster,
// assigns no agent to itself, and uses every reviewer exactly once.
func (d *Decision) ReviewsValid(roster []string) bool {
	if len(d.ReviewAssignments) != len(roster) {
		return false
	}
	known := make(map[string]bool, len(roster))
	for _, id := range roster {
		known[id] = true
	}
	used := make(map[string]bool, len(roster))
	for agent, reviewer := range d.ReviewAssignments {
		if !known[agent] || !known[reviewer] {
			return false
		}
		if agent == reviewer {
			return false
		}
		if used[reviewer] {
			return false
		}
		used[reviewer] = true
	}
	return len(used) == len(roster)
}

// Default texts for optional fields the leader left out.
const (
	defaultEvidencePlan = "Capture concrete outcomes for each task in the next cycle summary."
	defaultCostPlan     = "No budget impact identified for this cycle."
	defaultEnablers     = "None identified."
)

// Enrich fills documented defaults for the optional fields and replaces a
// missing or invalid reviewer assignment with the deterministic rotation for
// this cycle.
func (d *Decision) Enrich(roster []string, cycleID string) {
	if strings.TrimSpace(d.EvidencePlan) == "" {
		d.EvidencePlan = defaultEvidencePlan
	}
	if strings.TrimSpace(d.CostPlan) == "" {
		d.CostPlan = defaultCostPlan
	}
	if strings.TrimSpace(d.OptionalEnablers) == "" {
		d.OptionalEnablers = defaultEnablers
	}
	if !d.ReviewsValid(roster) {
		d.ReviewAssignments = ReviewRotation(roster, cycleID)
	}
}

// ReviewRotation computes the reviewer mapping for a cycle: the roster is
// shuffled with a generator seeded by the cycle id, then each agent is
// reviewed by its successor on the shuffled ring. The same cycle id always
// yields the same mapping, and for two or more agents the result is both a
// derangement and a permutation.
func ReviewRotation(roster []string, cycleID string) map[string]string {
	n := len(roster)
	if n == 0 {
		return map[string]string{}
	}

	perm := make([]string, n)
	copy(perm, roster)

	h := fnv.New64a()
	h.Write([]byte(cycleID))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))
	rng.Shuffle(n, func(i, j int) {
		perm[i], perm[j] = perm[j], perm[i]
	})

	assignments := make(map[string]string, n)
	for i, agent := range perm {
		assignments[agent] = perm[(i+1)%n]
	}
	return assignments
}

// Normalize case-folds a task description and collapses whitespace and
// punctuation runs so cosmetically different assignments still collide.
func Normalize(s string) string {
	var sb strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			sb.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(sb.String())
}
