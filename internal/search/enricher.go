package search

import (
	"context"
	"errors"
	"strings"

	"github.com/apex/log"
	"github.com/shopspring/decimal"

	"product-catalog-backend/internal/models"
	"product-catalog-backend/internal/pipeline"
)

// Searcher runs one web search. *Client implements it.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// Enricher finds a market price, a tax-excluded price and a product page for
// an extracted product. It implements pipeline.PriceSearcher.
type Enricher struct {
	searcher Searcher
}

func NewEnricher(searcher Searcher) *Enricher {
	return &Enricher{searcher: searcher}
}

// Lookup never fails. Any lookup problem leaves PriceInfo at models.PriceTBD
// and is logged.
func (e *Enricher) Lookup(ctx context.Context, productName, manufacturer string) models.PriceResult {
	result := models.PriceResult{PriceInfo: models.PriceTBD}

	query := strings.TrimSpace(productName + " " + manufacturer)
	if query == "" {
		return result
	}

	logger := log.WithFields(log.Fields{"component": "search", "query": query})

	results, err := e.searcher.Search(ctx, query)
	if err != nil {
		logger.WithError(err).Warn("price lookup failed")
		return result
	}

	result.ProductURL = SelectProductURL(results, manufacturer)

	if price, ok := firstRankedPrice(results); ok {
		result.PriceInfo = FormatYen(price)
	} else {
		logger.WithError(&pipeline.PriceLookupError{
			Reason: pipeline.PriceParseFailed,
			Err:    errors.New("no price in search results"),
		}).Warn("price lookup failed")
	}

	result.PriceTaxExcluded = e.taxExcluded(ctx, logger, query)

	logger.WithFields(log.Fields{
		"price":        result.PriceInfo,
		"tax_excluded": result.PriceTaxExcluded != nil,
		"url":          result.ProductURL != nil,
	}).Info("price lookup finished")

	return result
}

func (e *Enricher) taxExcluded(ctx context.Context, logger *log.Entry, query string) *string {
	results, err := e.searcher.Search(ctx, query+" 税抜き 価格")
	if priceReasonOf(err) == pipeline.PriceNoResults {
		results, err = e.searcher.Search(ctx, query+" 本体価格")
	}
	if err != nil {
		logger.WithError(err).Debug("tax-excluded price lookup failed")
		return nil
	}

	var prices []decimal.Decimal
	for _, r := range results {
		prices = append(prices, TaxExcludedPrices(r.Snippet+" "+r.Title)...)
	}
	if len(prices) == 0 {
		return nil
	}

	formatted := FormatTaxExcluded(Average(prices))
	return &formatted
}

func firstRankedPrice(results []Result) (decimal.Decimal, bool) {
	for _, r := range results {
		if price, ok := FirstPrice(r.Snippet + " " + r.Title); ok {
			return price, true
		}
	}
	return decimal.Zero, false
}

func priceReasonOf(err error) pipeline.PriceReason {
	var pe *pipeline.PriceLookupError
	if errors.As(err, &pe) {
		return pe.Reason
	}
	return ""
}
