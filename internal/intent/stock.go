package intent

import (
	"regexp"
	"strconv"
	"strings"
)

// MaxStockQuantity bounds a fast-path stock update.
const MaxStockQuantity = 1_000_000

var stockKeyword = regexp.MustCompile(`(?i)остат|наличи|количест|склад|шт`)
var stockAction = regexp.MustCompile(`(?i)^(установи(?:ть)?|поставь|задай|измени(?:ть)?|обнови(?:ть)?|сделай)\b`)

// Ordered cascade: most explicit phrasing first. Each pattern extracts
// (product candidate, quantity).
var stockPatterns = []*regexp.Regexp{
	// "установи остаток Чехол до 50", "поставь остатки Чехол на 50 шт"
	regexp.MustCompile(`(?i)^(?:установи(?:ть)?|поставь|задай|измени(?:ть)?|обнови(?:ть)?|сделай)\s+остат(?:ок|ки)\s+(.+?)\s+(?:до|на|в)\s+(\d+)\s*(?:шт\w*)?$`),
	// "установи остаток Чехол 50"
	regexp.MustCompile(`(?i)^(?:установи(?:ть)?|поставь|задай|измени(?:ть)?|обнови(?:ть)?|сделай)\s+остат(?:ок|ки)\s+(.+?)\s+(\d+)\s*(?:шт\w*)?$`),
	// "остаток Чехол 50 шт", "остатки Чехол: 50"
	regexp.MustCompile(`(?i)^остат(?:ок|ки)\s+(.+?)\s*[:—-]?\s+(\d+)\s*(?:шт\w*)?$`),
	// "Чехол остаток 50"
	regexp.MustCompile(`(?i)^(.+?)\s+остат(?:ок|ки)\s*[:—-]?\s*(\d+)\s*(?:шт\w*)?$`),
	// "установи Чехол до 50 шт"
	regexp.MustCompile(`(?i)^(?:установи(?:ть)?|поставь|задай)\s+(.+?)\s+(?:до|на|в)\s+(\d+)\s*(?:шт\w*)?$`),
	// "Чехол 50 шт"
	regexp.MustCompile(`(?i)^(.+?)\s+(\d+)\s*шт\w*$`),
}

// DetectStock classifies a single-product stock update. It returns nil for
// anything ambiguous; those commands go to the model path instead.
func (d *Detector) DetectStock(text string) *Intent {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if !stockKeyword.MatchString(text) && !stockAction.MatchString(text) {
		return nil
	}

	for _, pattern := range stockPatterns {
		m := pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		candidate := strings.TrimSpace(m[1])
		if !validCandidate(candidate) {
			return nil
		}
		qty, err := strconv.Atoi(m[2])
		if err != nil || qty < 0 || qty > MaxStockQuantity {
			return nil
		}
		return &Intent{
			Kind:         KindSetStock,
			ProductQuery: candidate,
			Quantity:     qty,
		}
	}
	return nil
}
