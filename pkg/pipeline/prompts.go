package pipeline

import (
	"fmt"
	"strings"
)

const clarifySystemPrompt = `You are a research assistant scoping a new research request.
Assess whether the request is specific enough to research well.
Ask at most one clarifying question, and only when the answer would
materially change the research direction. If the request is workable
as stated, confirm your reading of it instead of asking.`

func clarifySchema() string {
	return `Return the JSON object directly without any formatting or additional text. The JSON object should have the following structure as defined in the schema. Make sure to answer in valid json and include all necessary properties:{
  "type": "object",
  "properties": {
    "need_clarification": {
      "type": "boolean",
      "description": "Whether a clarifying question is needed before research can start"
    },
    "question": {
      "type": "string",
      "description": "The single clarifying question to ask the user, empty if none is needed"
    },
    "verification": {
      "type": "string",
      "description": "A short confirmation of how the request will be interpreted"
    }
  },
  "required": ["need_clarification", "question", "verification"]
}`
}

const briefSystemPrompt = `You are a research assistant.
Distill the conversation below into a single self-contained research brief.
State the research question in the first person, preserve every detail and
constraint the user gave, and do not invent requirements they did not state.
Where the user left a dimension open, note that the research should consider
it broadly rather than guessing a preference.`

func briefSchema() string {
	return `Return the JSON object directly without any formatting or additional text. The JSON object should have the following structure as defined in the schema. Make sure to answer in valid json and include all necessary properties:{
  "type": "object",
  "properties": {
    "brief": {
      "type": "string",
      "description": "The self-contained research brief in the first person"
    },
    "reasoning": {
      "type": "string",
      "description": "Short note on how the conversation was distilled"
    }
  },
  "required": ["brief"]
}`
}

func planSystemPrompt(maxQueries int) string {
	return fmt.Sprintf(`You are a research planner.
Break the research brief into %d or fewer distinct web search queries that
together cover the subject. Each query targets a different facet; no two
queries should return the same results. Also list the key topics the
research will cover, for later categorization.`, maxQueries)
}

func planSchema(maxQueries int) string {
	return fmt.Sprintf(`Return the JSON object directly without any formatting or additional text. The JSON object should have the following structure as defined in the schema. Make sure to answer in valid json and include all necessary properties:{
  "type": "object",
  "properties": {
    "queries": {
      "type": "array",
      "items": {
        "type": "string"
      },
      "description": "Up to %d distinct search queries covering different facets"
    },
    "key_topics": {
      "type": "array",
      "items": {
        "type": "string"
      },
      "description": "Key topics the research covers"
    },
    "reasoning": {
      "type": "string",
      "description": "Short note on how the brief was decomposed"
    }
  },
  "required": ["queries", "key_topics"]
}`, maxQueries)
}

const critiqueSystemPrompt = `You are a demanding research editor reviewing a draft report.
Judge whether the draft answers the research brief: completeness, accuracy
against the supplied findings, structure, and whether claims are attributed
to sources. Request a revision only for substantive problems, not stylistic
taste. When you request a revision, every issue must come with a concrete
improvement the writer can act on.`

func critiqueSchema() string {
	return `Return the JSON object directly without any formatting or additional text. The JSON object should have the following structure as defined in the schema. Make sure to answer in valid json and include all necessary properties:{
  "type": "object",
  "properties": {
    "needs_revision": {
      "type": "boolean",
      "description": "Whether the draft needs another revision pass"
    },
    "reasoning": {
      "type": "string",
      "description": "Overall assessment of the draft"
    },
    "issues": {
      "type": "array",
      "items": {
        "type": "string"
      },
      "description": "Substantive problems found in the draft"
    },
    "improvements": {
      "type": "array",
      "items": {
        "type": "string"
      },
      "description": "Concrete changes that would resolve the issues"
    }
  },
  "required": ["needs_revision", "reasoning"]
}`
}

func synthesisPrompt(brief string, keyTopics []string, findings []Finding) string {
	var sb strings.Builder
	sb.WriteString("You are a research analyst. Compress the raw findings below into structured research notes.\n")
	sb.WriteString("Group related facts, resolve contradictions by noting both sides, and keep the source URL next to every claim.\n")
	sb.WriteString("Do not editorialize; the notes feed a report writer.\n\n")
	sb.WriteString("Research Brief: " + brief + "\n")
	if len(keyTopics) > 0 {
		sb.WriteString("Key Topics: " + strings.Join(keyTopics, ", ") + "\n")
	}
	sb.WriteString("\nFindings:\n")
	for i, f := range findings {
		fmt.Fprintf(&sb, "[%d] %s (%s)\n%s\n\n", i+1, f.Title, f.URL, f.Content)
	}
	return sb.String()
}

func writePrompt(brief, notes, feedback string) string {
	var sb strings.Builder
	sb.WriteString(`You are a research report writer. Write a comprehensive report answering the research brief, using only the research notes below.

Structure the report as Markdown with these sections:
# <report title>
## Executive Summary
## Key Findings
## Detailed Analysis
## Recommendations
## Sources Consulted

Key Findings and Recommendations are bullet lists. Cite sources inline by URL and list every cited source under Sources Consulted. Do not introduce facts that are not in the notes.`)
	sb.WriteString("\n\nResearch Brief: " + brief + "\n\nResearch Notes:\n" + notes + "\n")
	if feedback != "" {
		sb.WriteString("\nA previous draft was reviewed. Address all of the reviewer's feedback in this revision:\n" + feedback + "\n")
	}
	return sb.String()
}

// critiqueFeedback flattens a critique into the feedback block handed back to
// the writer on the next revision.
func critiqueFeedback(c *Critique) string {
	var sb strings.Builder
	if c.Reasoning != "" {
		sb.WriteString("Assessment: " + c.Reasoning + "\n")
	}
	if len(c.Issues) > 0 {
		sb.WriteString("Issues:\n")
		for _, issue := range c.Issues {
			sb.WriteString("- " + issue + "\n")
		}
	}
	if len(c.Improvements) > 0 {
		sb.WriteString("Improvements:\n")
		for _, imp := range c.Improvements {
			sb.WriteString("- " + imp + "\n")
		}
	}
	return sb.String()
}
