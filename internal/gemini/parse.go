package gemini

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"product-catalog-backend/internal/models"
)

var errNoJSON = errors.New("no JSON object in response")

type rawCandidate struct {
	ProductName  *string                    `json:"product_name"`
	Manufacturer *string                    `json:"manufacturer"`
	Seller       *string                    `json:"seller"`
	Volume       *string                    `json:"volume"`
	Ingredients  flexibleList               `json:"ingredients"`
	Appeals      flexibleList               `json:"appeals"`
	Nutrition    map[string]json.RawMessage `json:"nutrition"`
	Category     *string                    `json:"category"`
}

// flexibleList accepts a JSON array of strings, a single delimited string, or null.
type flexibleList []string

func (l *flexibleList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*l = nil
		return nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var items []any
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			if item == nil {
				continue
			}
			out = append(out, fmt.Sprint(item))
		}
		*l = out
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*l = splitList(s)
	return nil
}

func splitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '、' || r == '，' || r == '\n'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// ExtractJSON pulls the JSON object out of a model response. It accepts a
// ```json fenced block, a plain ``` fenced block, or bare text around an object.
func ExtractJSON(response string) (string, error) {
	text := strings.TrimSpace(response)

	if start := strings.Index(text, "```json"); start != -1 {
		body := text[start+len("```json"):]
		if end := strings.Index(body, "```"); end != -1 {
			return strings.TrimSpace(body[:end]), nil
		}
	}

	if start := strings.Index(text, "```"); start != -1 {
		body := text[start+3:]
		if end := strings.Index(body, "```"); end != -1 {
			return strings.TrimSpace(body[:end]), nil
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end < start {
		return "", errNoJSON
	}
	return text[start : end+1], nil
}

// ParseCandidate converts a model response into a candidate. Fields the
// model reported as null stay absent.
func ParseCandidate(response string) (models.Candidate, error) {
	body, err := ExtractJSON(response)
	if err != nil {
		return models.Candidate{}, err
	}

	var raw rawCandidate
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return models.Candidate{}, fmt.Errorf("failed to decode candidate: %w", err)
	}

	c := models.Candidate{
		ProductName:  cleanScalar(raw.ProductName),
		Manufacturer: cleanScalar(raw.Manufacturer),
		Seller:       cleanScalar(raw.Seller),
		Volume:       cleanScalar(raw.Volume),
		Ingredients:  []string(raw.Ingredients),
		Appeals:      []string(raw.Appeals),
	}

	for key, value := range raw.Nutrition {
		key = strings.ToLower(strings.TrimSpace(key))
		if !models.IsNutritionKey(key) {
			continue
		}
		s, ok := nutritionValue(value)
		if !ok {
			continue
		}
		if c.Nutrition == nil {
			c.Nutrition = make(map[string]string)
		}
		c.Nutrition[key] = s
	}

	name := ""
	if c.ProductName != nil {
		name = *c.ProductName
	}
	if raw.Category != nil || name != "" {
		rawCategory := ""
		if raw.Category != nil {
			rawCategory = *raw.Category
		}
		category := models.NormalizeCategory(rawCategory, name)
		if raw.Category != nil || category != models.CategoryOther {
			c.Category = &category
		}
	}

	return c, nil
}

// cleanScalar trims s and treats the literal strings the model uses for
// "nothing found" as absent.
func cleanScalar(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	switch strings.ToLower(v) {
	case "null", "none", "n/a", "unknown":
		return nil
	}
	return &v
}

func nutritionValue(raw json.RawMessage) (string, bool) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil || v == nil {
		return "", false
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" || strings.EqualFold(s, "null") {
		return "", false
	}
	return s, true
}
