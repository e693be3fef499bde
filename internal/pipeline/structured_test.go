package pipeline

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carevault/reportflow/internal/models"
)

type stubGenerator struct {
	reply   string
	err     error
	prompts []string
}

func (g *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

func TestDecodeCandidates_RecoveryVariants(t *testing.T) {
	want := []models.CandidateRecord{
		{"title": "Blood Panel", "summary": "normal"},
	}

	tests := []struct {
		name string
		raw  string
	}{
		{
			name: "bare array",
			raw:  `[{"title":"Blood Panel","summary":"normal"}]`,
		},
		{
			name: "fenced array",
			raw:  "Here you go:\n```json\n[{\"title\":\"Blood Panel\",\"summary\":\"normal\"}]\n```\nLet me know if you need anything else.",
		},
		{
			name: "prose wrapped array",
			raw:  `Sure! The structured output is [{"title":"Blood Panel","summary":"normal"}] as requested.`,
		},
		{
			name: "whitespace padding",
			raw:  "\n\n  [{\"title\":\"Blood Panel\",\"summary\":\"normal\"}]  \n",
		},
		{
			name: "uppercase fence label",
			raw:  "```JSON\n[{\"title\":\"Blood Panel\",\"summary\":\"normal\"}]\n```",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeCandidates(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestDecodeCandidates_ObjectWithArrayField(t *testing.T) {
	// An object payload embedding an array must survive prose wrapping whole;
	// scraping the inner array would silently drop the enclosing fields.
	payload := `{"report_type":"Lipid Panel","tests":[{"name":"LDL","value":"162"}],"summary":"elevated"}`

	tests := []struct {
		name string
		raw  string
	}{
		{name: "bare", raw: payload},
		{name: "fenced", raw: "```json\n" + payload + "\n```"},
		{name: "prose wrapped", raw: "Here is the report: " + payload + " hope this helps."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeCandidates(tt.raw)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "Lipid Panel", got[0]["report_type"])
			assert.Equal(t, "elevated", got[0]["summary"])
			assert.Len(t, got[0]["tests"], 1)
		})
	}
}

func TestDecodeCandidates_SingleObjectCoerces(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "bare object", raw: `{"title":"MRI"}`},
		{name: "prose wrapped object", raw: `The result is {"title":"MRI"} as requested.`},
		{name: "fenced object", raw: "```json\n{\"title\":\"MRI\"}\n```"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeCandidates(tt.raw)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "MRI", got[0]["title"])
		})
	}
}

func TestDecodeCandidates_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty response", raw: ""},
		{name: "whitespace only", raw: "   \n\t"},
		{name: "no json at all", raw: "I could not read the document."},
		{name: "broken json in fence", raw: "```json\n{\"title\": \n```"},
		{name: "array with scalar element", raw: `[{"title":"a"}, 42]`},
		{name: "scalar payload", raw: `"just a string"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCandidates(tt.raw)
			assert.Error(t, err)
		})
	}
}

func TestStructuredExtractor_PromptCarriesTextAndRef(t *testing.T) {
	gen := &stubGenerator{reply: `[{"title":"X"}]`}
	ex := NewStructuredExtractor(gen, models.SchemaClinical)

	_, err := ex.Extract(context.Background(), "HEMOGLOBIN 13.5 g/dL", "https://img.example/page-1.png")
	require.NoError(t, err)

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "HEMOGLOBIN 13.5 g/dL")
	assert.Contains(t, gen.prompts[0], `"https://img.example/page-1.png"`)
	assert.Contains(t, gen.prompts[0], "additionalDetails")
}

func TestStructuredExtractor_LabPrompt(t *testing.T) {
	gen := &stubGenerator{reply: `[]`}
	ex := NewStructuredExtractor(gen, models.SchemaLab)

	_, err := ex.Extract(context.Background(), "WBC 6.1", "gs://audit/x.pdf")
	require.NoError(t, err)

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], `"tests"`)
	assert.Contains(t, gen.prompts[0], `"gs://audit/x.pdf"`)
	assert.NotContains(t, gen.prompts[0], "additionalDetails")
}

func TestStructuredExtractor_GeneratorFailure(t *testing.T) {
	gen := &stubGenerator{err: errors.New("quota exceeded")}
	ex := NewStructuredExtractor(gen, models.SchemaClinical)

	_, err := ex.Extract(context.Background(), "some text", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStructuredExtractionFailed)
	assert.Equal(t, StageStructured, ErrorStage(err))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
}

func TestStructuredExtractor_UnparseableResponse(t *testing.T) {
	gen := &stubGenerator{reply: "no structure here"}
	ex := NewStructuredExtractor(gen, models.SchemaClinical)

	_, err := ex.Extract(context.Background(), "some text", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStructuredExtractionFailed)
}
