package llm

// SubQuestion is one atomic follow-up question emitted by the researcher,
// with keywords that sharpen retrieval.
type SubQuestion struct {
	QuestionText string   `json:"question_text"`
	Keywords     []string `json:"keywords"`
}

// Decision is the researcher's structured verdict on whether the evidence
// gathered so far answers the original question. Reasoning and Questions
// are only populated when Satisfied is false.
type Decision struct {
	SatisfiedReason string        `json:"satisfied_reason"`
	Satisfied       bool          `json:"satisfied"`
	Reasoning       string        `json:"reasoning"`
	Questions       []SubQuestion `json:"questions"`
}

// DecisionSchema is the strict schema the researcher must answer with.
var DecisionSchema = MustSchema("research_decision", `{
	"type": "object",
	"additionalProperties": false,
	"required": ["satisfied_reason", "satisfied", "reasoning", "questions"],
	"properties": {
		"satisfied_reason": {
			"type": "string",
			"description": "Assessment of whether the context fully answers the original question, component by component."
		},
		"satisfied": {
			"type": "boolean",
			"description": "True only if the context alone supports a complete and unambiguous answer."
		},
		"reasoning": {
			"type": "string",
			"description": "When not satisfied: what is missing, why it matters, and how the next questions target it."
		},
		"questions": {
			"type": "array",
			"items": {
				"type": "object",
				"additionalProperties": false,
				"required": ["question_text", "keywords"],
				"properties": {
					"question_text": {"type": "string"},
					"keywords": {"type": "array", "items": {"type": "string"}}
				}
			}
		}
	}
}`)
