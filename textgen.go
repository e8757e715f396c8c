package firmstore

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"
)

// BlogPost is a generated article for the site's blog section
type BlogPost struct {
	Title   string   `json:"title"`
	Slug    string   `json:"slug"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

// TextGenerator produces structured content for the site. Implementations
// return parsed documents, not raw model output.
type TextGenerator interface {
	// FlashingGuide generates a flashing guide for devices of the named brand
	FlashingGuide(ctx context.Context, brandName string) (*FlashingInstructions, error)
	// ArticleFor generates a blog post about the given topic
	ArticleFor(ctx context.Context, topic string) (*BlogPost, error)
}

// GeminiGenerator implements TextGenerator on the Gemini API, constraining
// responses to JSON via a response schema so parsing never depends on prompt
// obedience.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// DefaultGeminiModel is used when no model is configured
const DefaultGeminiModel = "gemini-2.0-flash"

// NewGeminiGenerator creates a generator using the given API key
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if model == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

func (g *GeminiGenerator) generate(ctx context.Context, prompt string, schema *genai.Schema, dest interface{}) error {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	})
	if err != nil {
		return fmt.Errorf("content generation failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return WithContext(ErrInvalidData, map[string]interface{}{"reason": "empty model response"})
	}
	if err := json.Unmarshal([]byte(text), dest); err != nil {
		return WithContext(ErrInvalidData, map[string]interface{}{
			"reason": "model response is not valid JSON", "parse_error": err.Error(),
		})
	}
	return nil
}

func (g *GeminiGenerator) FlashingGuide(ctx context.Context, brandName string) (*FlashingInstructions, error) {
	prompt := fmt.Sprintf(
		"Write a practical firmware flashing guide for %s Android devices. "+
			"Cover preparation, the flashing procedure step by step, and a data-loss warning. "+
			"Name the flashing tool commonly used for this brand in the tool field.",
		brandName,
	)

	schema := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"introduction":  {Type: genai.TypeString},
			"prerequisites": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			"instructions": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"title":       {Type: genai.TypeString},
						"description": {Type: genai.TypeString},
					},
					Required: []string{"title", "description"},
				},
			},
			"warning": {Type: genai.TypeString},
			"tool":    {Type: genai.TypeString},
		},
		Required: []string{"introduction", "prerequisites", "instructions", "warning"},
	}

	var guide FlashingInstructions
	if err := g.generate(ctx, prompt, schema, &guide); err != nil {
		return nil, err
	}
	return &guide, nil
}

func (g *GeminiGenerator) ArticleFor(ctx context.Context, topic string) (*BlogPost, error) {
	prompt := fmt.Sprintf(
		"Write an informative blog post about %q for an Android firmware download site. "+
			"Use markdown in the content field and a URL-safe slug.",
		topic,
	)

	schema := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title":   {Type: genai.TypeString},
			"slug":    {Type: genai.TypeString},
			"content": {Type: genai.TypeString},
			"tags":    {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		},
		Required: []string{"title", "slug", "content"},
	}

	var post BlogPost
	if err := g.generate(ctx, prompt, schema, &post); err != nil {
		return nil, err
	}
	if post.Slug == "" {
		post.Slug = Slugify(post.Title)
	}
	return &post, nil
}
