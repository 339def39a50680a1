package quarantine

import "regexp"

// adversarialPatterns are the textual idioms the content scan blocks:
// attempts to override agent instructions, shell pipelines that execute
// downloaded code, and requests to reveal secrets or system prompts.
var adversarialPatterns = []struct {
	label string
	re    *regexp.Regexp
}{
	{
		label: "instruction override",
		re:    regexp.MustCompile(`(?i)(ignore|disregard|forget)\s+(all\s+|any\s+)?(previous|prior|above|earlier)\s+(instructions|prompts|rules|directives)`),
	},
	{
		label: "instruction override",
		re:    regexp.MustCompile(`(?i)you\s+are\s+no\s+longer\s+(bound|restricted|limited)\s+by`),
	},
	{
		label: "pipe to interpreter",
		re:    regexp.MustCompile(`(?i)(curl|wget)\b[^|\n]{0,200}\|\s*(sudo\s+)?(ba|z|da)?sh\b`),
	},
	{
		label: "pipe to interpreter",
		re:    regexp.MustCompile(`(?i)(curl|wget)\b[^|\n]{0,200}\|\s*(sudo\s+)?python3?\b`),
	},
	{
		label: "secret revelation request",
		re:    regexp.MustCompile(`(?i)(reveal|print|show|output|leak|exfiltrate|send)\s+(me\s+)?(your|the)\s+(system\s+prompt|api\s*[_-]?key|secret|credential|password|token)`),
	},
	{
		label: "secret revelation request",
		re:    regexp.MustCompile(`(?i)what\s+(is|are)\s+your\s+(system\s+prompt|initial\s+instructions|api\s*[_-]?key)`),
	},
}

// urlPattern extracts embedded http(s) URLs from a content blob.
var urlPattern = regexp.MustCompile(`https?://[^\s<>"'\)\]]+`)

func extractURLs(blob string) []string {
	return urlPattern.FindAllString(blob, -1)
}
