package models

import "strings"

type Category string

const (
	CategoryChocolate  Category = "Chocolate"
	CategoryGummy      Category = "Gummy"
	CategoryCookie     Category = "Cookie"
	CategorySnack      Category = "Snack"
	CategoryDonut      Category = "Donut"
	CategoryJelly      Category = "Jelly"
	CategoryNoodle     Category = "Noodle"
	CategorySupplement Category = "Supplement"
	CategoryBeverage   Category = "Beverage"
	CategoryProtein    Category = "Protein"
	CategoryOther      Category = "Other"
)

// Categories is the fixed set of product categories in display order.
var Categories = []Category{
	CategoryChocolate,
	CategoryGummy,
	CategoryCookie,
	CategorySnack,
	CategoryDonut,
	CategoryJelly,
	CategoryNoodle,
	CategorySupplement,
	CategoryBeverage,
	CategoryProtein,
	CategoryOther,
}

// Japanese labels the vision model sometimes answers with instead of the English value.
var categoryLabels = map[string]Category{
	"チョコレート":  CategoryChocolate,
	"チョコ":     CategoryChocolate,
	"グミ":      CategoryGummy,
	"クッキー":    CategoryCookie,
	"ビスケット":   CategoryCookie,
	"焼き菓子":    CategoryCookie,
	"スナック":    CategorySnack,
	"せんべい":    CategorySnack,
	"ポテトチップス": CategorySnack,
	"ドーナツ":    CategoryDonut,
	"ゼリー":     CategoryJelly,
	"プリン":     CategoryJelly,
	"麺":       CategoryNoodle,
	"麺類":      CategoryNoodle,
	"ラーメン":    CategoryNoodle,
	"うどん":     CategoryNoodle,
	"そば":      CategoryNoodle,
	"サプリメント":  CategorySupplement,
	"サプリ":     CategorySupplement,
	"健康食品":    CategorySupplement,
	"ビタミン":    CategorySupplement,
	"飲料":      CategoryBeverage,
	"ドリンク":    CategoryBeverage,
	"ジュース":    CategoryBeverage,
	"プロテイン":   CategoryProtein,
	"その他":     CategoryOther,
	"noodles":  CategoryNoodle,
}

// Keyword hints looked up in the product name. The first match wins.
var nameKeywords = []struct {
	category Category
	words    []string
}{
	{CategoryChocolate, []string{"チョコ", "chocolate", "ショコラ"}},
	{CategoryGummy, []string{"グミ", "gummy", "gummies"}},
	{CategoryCookie, []string{"クッキー", "cookie", "ビスケット", "biscuit"}},
	{CategorySnack, []string{"スナック", "snack", "チップス", "chips", "せんべい"}},
	{CategoryDonut, []string{"ドーナツ", "ドーナッツ", "donut", "doughnut"}},
	{CategoryJelly, []string{"ゼリー", "jelly", "プリン", "pudding"}},
	{CategoryNoodle, []string{"麺", "ラーメン", "うどん", "そば", "ヌードル", "noodle"}},
	{CategorySupplement, []string{"サプリ", "supplement", "ビタミン", "vitamin"}},
	{CategoryBeverage, []string{"飲料", "ドリンク", "ジュース", "beverage", "drink"}},
	{CategoryProtein, []string{"プロテイン", "protein"}},
}

// IsValid reports whether c is a member of Categories.
func (c Category) IsValid() bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// ParseCategory matches raw against the category set case-insensitively.
func ParseCategory(raw string) (Category, bool) {
	raw = strings.TrimSpace(raw)
	for _, v := range Categories {
		if strings.EqualFold(string(v), raw) {
			return v, true
		}
	}
	return "", false
}

// NormalizeCategory maps a model-provided category onto the fixed set.
// Unknown values fall back to keyword hints in productName, then to Other.
func NormalizeCategory(raw, productName string) Category {
	if c, ok := ParseCategory(raw); ok && c != CategoryOther {
		return c
	}
	if c, ok := categoryLabels[strings.ToLower(strings.TrimSpace(raw))]; ok && c != CategoryOther {
		return c
	}

	name := strings.ToLower(productName)
	if name != "" {
		for _, hint := range nameKeywords {
			for _, w := range hint.words {
				if strings.Contains(name, w) {
					return hint.category
				}
			}
		}
	}

	return CategoryOther
}
