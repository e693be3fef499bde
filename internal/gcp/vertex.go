package gcp

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

// FormatterSystemPrompt frames every structured-extraction request. The
// per-request rules and schema travel in the user prompt built by the
// pipeline.
const FormatterSystemPrompt = "You are a medical report formatter. You convert raw OCR text from clinical documents into structured JSON records, following exactly the schema and rules given in each request."

// VertexClient holds the pre-configured generative model for report
// formatting.
type VertexClient struct {
	FormatterModel *genai.GenerativeModel
	baseClient     *genai.Client
}

// NewVertexClient creates a client with the formatter model configured.
func NewVertexClient(ctx context.Context, projectID, region string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	formatterModel := baseClient.GenerativeModel("gemini-2.0-flash")
	formatterModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(FormatterSystemPrompt)},
	}
	formatterModel.GenerationConfig = genai.GenerationConfig{
		// Ask for JSON and keep it deterministic. The response is still
		// treated as best-effort text by the recovery chain downstream.
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}
	// Clinical text trips the default filters easily.
	formatterModel.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}

	return &VertexClient{
		FormatterModel: formatterModel,
		baseClient:     baseClient,
	}, nil
}

// Generate sends one prompt to the formatter model and returns its raw text
// response. It satisfies the pipeline's Generator interface.
func (c *VertexClient) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.FormatterModel.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content from gemini: %w", err)
	}
	return textContent(resp), nil
}

// textContent concatenates the text parts of the first candidate.
func textContent(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
