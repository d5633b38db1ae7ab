package intent

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shoplens-ai/catalog-assistant/internal/model"
	"github.com/shoplens-ai/catalog-assistant/internal/resolver"
)

var (
	discountKeyword = regexp.MustCompile(`(?i)скидк`)
	percentPattern  = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*%`)
	// "скидка 20", "скидку в 15" without a percent sign
	discountNumber = regexp.MustCompile(`(?i)скидк\w*\s+(?:в\s+)?(\d+(?:[.,]\d+)?)`)
	pronounRef     = regexp.MustCompile(`(?i)(?:^|\s)(него|неё|нее|ней|них|этот|эту|это|его|её|ее)(?:\s|$|[.,!?])`)
)

// Detector runs the fast-path intent cascade against a catalog snapshot.
type Detector struct {
	res *resolver.Resolver
}

// NewDetector creates a detector sharing the given resolver.
func NewDetector(res *resolver.Resolver) *Detector {
	return &Detector{res: res}
}

// DetectDiscount classifies a single-product discount command. A non-nil
// error means the command is a discount but its percentage is invalid; a nil
// intent with nil error defers the command to the model path.
func (d *Detector) DetectDiscount(text string, products []model.Product, aiCtx *model.AIContext) (*Intent, *model.OpError) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if !strings.Contains(text, "%") && !discountKeyword.MatchString(text) {
		return nil, nil
	}

	percentage, ok := extractPercentage(text)
	if !ok {
		return nil, nil
	}
	if percentage <= 0 {
		return nil, &model.OpError{Code: model.ErrCodeValidation, Message: "процент скидки должен быть больше нуля", Field: "percentage"}
	}
	if percentage > 100 {
		return nil, &model.OpError{Code: model.ErrCodeValidation, Message: "процент скидки не может превышать 100", Field: "percentage"}
	}

	// Whole-catalog discounts carry confirmation semantics the fast path
	// cannot provide.
	if mentionsAll(text) {
		return nil, nil
	}

	target := d.resolveTarget(text, products, aiCtx)
	if target == nil {
		// No explicit mention and no usable context: defer to the model,
		// never guess the only catalog item.
		return nil, nil
	}

	return &Intent{
		Kind:        KindApplyDiscount,
		ProductID:   target.ID,
		ProductName: target.Name,
		Percentage:  percentage,
	}, nil
}

// extractPercentage pulls a single percentage out of the command. Multiple
// distinct percentages defer to the model.
func extractPercentage(text string) (float64, bool) {
	matches := percentPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		matches = discountNumber.FindAllStringSubmatch(text, -1)
	}
	if len(matches) == 0 {
		return 0, false
	}

	values := make(map[string]bool)
	var raw string
	for _, m := range matches {
		raw = strings.ReplaceAll(m[1], ",", ".")
		values[raw] = true
	}
	if len(values) > 1 {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// resolveTarget finds the discount target: the last-referenced context
// product when it uniquely fuzzy-matches the snapshot and the command does
// not explicitly name another product, else an exact substring match of a
// known product name inside the command.
func (d *Detector) resolveTarget(text string, products []model.Product, aiCtx *model.AIContext) *model.Product {
	mentioned := substringMatch(text, products)

	if aiCtx != nil && aiCtx.LastProductName != "" {
		matches := d.res.Rank(aiCtx.LastProductName, products, resolver.ThresholdStrict)
		if len(matches) == 1 {
			ctxProduct := matches[0].Product
			if mentioned == nil || mentioned.ID == ctxProduct.ID || pronounRef.MatchString(text) {
				return &ctxProduct
			}
		}
	}

	return mentioned
}

// substringMatch finds the catalog product whose name appears verbatim in the
// command. The longest mentioned name wins; a length tie between different
// products is ambiguous and returns nil.
func substringMatch(text string, products []model.Product) *model.Product {
	lower := strings.ToLower(text)

	var best *model.Product
	bestLen := 0
	ambiguous := false
	for i := range products {
		name := strings.ToLower(strings.TrimSpace(products[i].Name))
		if name == "" || !strings.Contains(lower, name) {
			continue
		}
		switch {
		case len(name) > bestLen:
			best = &products[i]
			bestLen = len(name)
			ambiguous = false
		case len(name) == bestLen:
			ambiguous = true
		}
	}
	if ambiguous {
		return nil
	}
	return best
}
