package semantic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"swapmatch/internal/domain"
	"swapmatch/internal/matching"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// generator is the part of *genai.GenerativeModel the matcher needs
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Client asks Gemini to pair up items between two traders
type Client struct {
	client  *genai.Client
	model   generator
	timeout time.Duration
	logger  *zap.Logger
}

// NewClient connects to Gemini with an API key. The model answers in JSON only.
func NewClient(ctx context.Context, apiKey, modelName string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(0.2)

	return &Client{client: client, model: model, timeout: timeout, logger: logger}, nil
}

// Close releases the underlying connection
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

type promptItem struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Category    domain.Category     `json:"category"`
	Condition   domain.Condition    `json:"condition"`
	Description string              `json:"description"`
	Price       float64             `json:"price"`
	LookingFor  domain.DesiredItems `json:"looking_for,omitempty"`
}

type promptParty struct {
	Wishlist    []domain.WishlistEntry `json:"wishlist"`
	ListedItems []promptItem           `json:"listed_items"`
}

type matchesResponse struct {
	Matches []matching.SemanticMatch `json:"matches"`
}

// MatchTrades implements matching.SemanticMatcher. Any transport failure or
// malformed answer is reported as matching.ErrSemanticUnavailable.
func (c *Client) MatchTrades(ctx context.Context, a, b matching.Party) ([]matching.SemanticMatch, error) {
	prompt, err := buildPrompt(a, b)
	if err != nil {
		return nil, err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", matching.ErrSemanticUnavailable, err)
	}

	text, err := responseText(resp)
	if err != nil {
		return nil, err
	}

	matches, err := parseMatches(text)
	if err != nil {
		c.logger.Debug("Unparsable Gemini response", zap.String("raw", text))
		return nil, err
	}
	return matches, nil
}

func buildPrompt(a, b matching.Party) (string, error) {
	current, err := json.MarshalIndent(toPromptParty(a), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode current user: %w", err)
	}
	other, err := json.MarshalIndent(toPromptParty(b), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode other user: %w", err)
	}

	return fmt.Sprintf(`Analyze these users' items and wishlists to find potential trade matches.
Consider all item details, categories, and trade preferences.

Current User:
%s

Other User:
%s

Find potential trades where both users have items the other wants.
Only use item ids that appear in the listed items above.
Respond in JSON only, with this format:
{
  "matches": [
    {
      "current_user_items": ["item_id"],
      "other_user_items": ["item_id"],
      "match_score": 0.95,
      "explanation": "why this trade works for both users"
    }
  ]
}
match_score is between 0 and 1. Return {"matches": []} when nothing fits.
`, current, other), nil
}

func toPromptParty(p matching.Party) promptParty {
	out := promptParty{
		Wishlist:    p.Wishlist,
		ListedItems: make([]promptItem, 0, len(p.Items)),
	}
	for _, item := range p.Items {
		if !item.ForTrade {
			continue
		}
		out.ListedItems = append(out.ListedItems, promptItem{
			ID:          item.ID,
			Name:        item.Name,
			Category:    item.Category,
			Condition:   item.Condition,
			Description: item.Description,
			Price:       item.Price,
			LookingFor:  item.LookingFor,
		})
	}
	return out
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 ||
		resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: empty response from Gemini", matching.ErrSemanticUnavailable)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: unexpected response type", matching.ErrSemanticUnavailable)
	}
	return sb.String(), nil
}

func parseMatches(text string) ([]matching.SemanticMatch, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var parsed matchesResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &parsed); err != nil {
		return nil, fmt.Errorf("%w: failed to parse JSON: %v", matching.ErrSemanticUnavailable, err)
	}
	if parsed.Matches == nil {
		parsed.Matches = []matching.SemanticMatch{}
	}
	return parsed.Matches, nil
}
