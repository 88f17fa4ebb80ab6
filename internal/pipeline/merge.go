package pipeline

import (
	"strings"

	"product-catalog-backend/internal/models"
)

// Merge combines per-image candidates into one field set. Candidates must be
// in upload order: position 0 takes precedence for scalar fields.
//
// A field no candidate reported stays absent (nil). A field some candidate
// reported, but only ever as blank, merges to "" or an empty list.
//
// Merge is pure. The same input always yields the same output, and an input of
// all-empty candidates yields an empty result with category Other.
func Merge(candidates []models.Candidate) models.Candidate {
	var merged models.Candidate

	for _, c := range candidates {
		merged.ProductName = firstScalar(merged.ProductName, c.ProductName)
		merged.Volume = firstScalar(merged.Volume, c.Volume)
		merged.Manufacturer = firstScalar(merged.Manufacturer, c.Manufacturer)
		merged.Seller = firstScalar(merged.Seller, c.Seller)

		if merged.Category == nil && c.Category != nil && *c.Category != models.CategoryOther && c.Category.IsValid() {
			category := *c.Category
			merged.Category = &category
		}

		for _, key := range models.NutritionKeys {
			v, ok := c.Nutrition[key]
			if !ok || strings.TrimSpace(v) == "" {
				continue
			}
			if _, taken := merged.Nutrition[key]; taken {
				continue
			}
			if merged.Nutrition == nil {
				merged.Nutrition = make(map[string]string)
			}
			merged.Nutrition[key] = v
		}
	}

	merged.ProductName = blankIfReported(merged.ProductName, candidates, func(c models.Candidate) *string { return c.ProductName })
	merged.Volume = blankIfReported(merged.Volume, candidates, func(c models.Candidate) *string { return c.Volume })
	merged.Manufacturer = blankIfReported(merged.Manufacturer, candidates, func(c models.Candidate) *string { return c.Manufacturer })
	merged.Seller = blankIfReported(merged.Seller, candidates, func(c models.Candidate) *string { return c.Seller })

	merged.Ingredients = unionFold(candidates, func(c models.Candidate) []string { return c.Ingredients })
	merged.Appeals = unionFold(candidates, func(c models.Candidate) []string { return c.Appeals })

	if merged.Category == nil {
		other := models.CategoryOther
		merged.Category = &other
	}

	return merged
}

func firstScalar(current, next *string) *string {
	if current != nil || next == nil || strings.TrimSpace(*next) == "" {
		return current
	}
	v := *next
	return &v
}

func blankIfReported(current *string, candidates []models.Candidate, field func(models.Candidate) *string) *string {
	if current != nil {
		return current
	}
	for _, c := range candidates {
		if field(c) != nil {
			blank := ""
			return &blank
		}
	}
	return nil
}

// unionFold returns the union of a list field across candidates, keeping the
// first-seen spelling of values that compare equal after trim and case folding.
// The result is nil only when no candidate reported the list at all.
func unionFold(candidates []models.Candidate, field func(models.Candidate) []string) []string {
	var out []string
	seen := make(map[string]struct{})

	for _, c := range candidates {
		values := field(c)
		if values != nil && out == nil {
			out = []string{}
		}
		for _, v := range values {
			v = strings.TrimSpace(v)
			key := strings.ToLower(v)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, v)
		}
	}

	return out
}
