package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/carevault/reportflow/internal/models"
)

// Generator is the generative-text collaborator. It takes a full prompt and
// returns the model's free-form text response.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

const clinicalPromptTemplate = `Convert the extracted medical report text below into structured JSON.

Return a JSON array of report objects, even when there is only one report.
Each object must have exactly this shape:
{
  "title": "",
  "category": "",
  "doctor": "",
  "hospital": "",
  "date": "",
  "imageUrl": "",
  "summary": "",
  "additionalDetails": {}
}

Rules:
- "category" is a short label such as "Labs", "Imaging" or "Diagnosis".
- "date" is an ISO-8601 date string when one can be read from the text.
- Use an empty string for any field that cannot be determined.
- "additionalDetails" maps field names to values, clinical and numeric findings only. Never include personal-identity fields such as patient name, address or contact details.
- Set "imageUrl" to %q on every object.
- Output only the JSON array, with no commentary.

Text:
"""%s"""`

const labPromptTemplate = `Convert the extracted lab report text below into structured JSON.

Return a JSON array of report objects, even when there is only one report.
Each object must have exactly this shape:
{
  "hospital": "",
  "doctor": "",
  "date": "",
  "report_type": "",
  "tests": [
    {
      "name": "",
      "value": "",
      "unit": "",
      "range": "",
      "status": ""
    }
  ],
  "summary": "",
  "sourceURI": ""
}

Rules:
- "date" is an ISO-8601 date string when one can be read from the text.
- Use an empty string for any field that cannot be determined.
- One entry in "tests" per measured result, in the order the results appear.
- Set "sourceURI" to %q on every object.
- Output only the JSON array, with no commentary.

Text:
"""%s"""`

// StructuredExtractor turns a raw text blob into candidate records by
// prompting the generative service and recovering the JSON payload embedded
// in its best-effort response.
type StructuredExtractor struct {
	gen    Generator
	schema models.ReportSchema
}

// NewStructuredExtractor creates a StructuredExtractor emitting the given
// record schema.
func NewStructuredExtractor(gen Generator, schema models.ReportSchema) *StructuredExtractor {
	return &StructuredExtractor{gen: gen, schema: schema}
}

// Extract sends one request and decodes the response into candidate records.
// hostedRef is the already-hosted image URL (clinical schema) or source URI
// (lab schema) the model is told to stamp on every record; it is neither
// fetched nor validated here.
func (e *StructuredExtractor) Extract(ctx context.Context, text, hostedRef string) ([]models.CandidateRecord, error) {
	raw, err := e.gen.Generate(ctx, e.buildPrompt(text, hostedRef))
	if err != nil {
		return nil, failStage(StageStructured, ErrStructuredExtractionFailed, err)
	}
	records, err := DecodeCandidates(raw)
	if err != nil {
		return nil, failStage(StageStructured, ErrStructuredExtractionFailed, err)
	}
	return records, nil
}

func (e *StructuredExtractor) buildPrompt(text, hostedRef string) string {
	if e.schema == models.SchemaLab {
		return fmt.Sprintf(labPromptTemplate, hostedRef, text)
	}
	return fmt.Sprintf(clinicalPromptTemplate, hostedRef, text)
}

var fencedJSONRe = regexp.MustCompile("(?is)```json\\s*(.*?)\\s*```")

// DecodeCandidates recovers the JSON payload embedded in a model response and
// represents it uniformly as a sequence of candidate records. A single JSON
// object coerces to a length-1 sequence. A parse failure is fatal; there is
// no retry and no partial acceptance.
func DecodeCandidates(raw string) ([]models.CandidateRecord, error) {
	payload := recoverJSON(raw)
	if payload == "" {
		return nil, fmt.Errorf("empty response")
	}

	var decoded any
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return nil, fmt.Errorf("parse recovered JSON: %w", err)
	}

	switch v := decoded.(type) {
	case map[string]any:
		return []models.CandidateRecord{v}, nil
	case []any:
		records := make([]models.CandidateRecord, 0, len(v))
		for i, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("element %d of recovered JSON is not an object", i)
			}
			records = append(records, obj)
		}
		return records, nil
	default:
		return nil, fmt.Errorf("recovered JSON is neither an object nor an array")
	}
}

// recoverJSON applies the ordered recovery chain: the interior of a
// ```json fence if one exists, else the outermost bracketed span, else the
// whole response; always trimmed. This is a textual scrape, not a
// grammar-validated parse — the model is not guaranteed to honor the prompt.
func recoverJSON(raw string) string {
	if m := fencedJSONRe.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	// The payload's own kind is whichever bracket opens first: an array
	// payload contains {...} spans, and an object payload can embed [...]
	// fields, so neither span can be preferred unconditionally.
	open, close := byte('{'), byte('}')
	objIdx := strings.IndexByte(raw, '{')
	arrIdx := strings.IndexByte(raw, '[')
	if objIdx < 0 || (arrIdx >= 0 && arrIdx < objIdx) {
		open, close = '[', ']'
	}
	if span := outermostSpan(raw, open, close); span != "" {
		return strings.TrimSpace(span)
	}
	return strings.TrimSpace(raw)
}

func outermostSpan(s string, open, close byte) string {
	start := strings.IndexByte(s, open)
	if start < 0 {
		return ""
	}
	end := strings.LastIndexByte(s, close)
	if end <= start {
		return ""
	}
	return s[start : end+1]
}
