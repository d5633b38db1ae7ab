// Package synthesizer converts structured operation results into the
// user-facing message.
package synthesizer

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/shoplens-ai/catalog-assistant/internal/executor"
	"github.com/shoplens-ai/catalog-assistant/internal/llm"
	"github.com/shoplens-ai/catalog-assistant/internal/model"
	"github.com/shoplens-ai/catalog-assistant/pkg/logger"
)

const phrasingSystemPrompt = `Ты — ассистент продавца интернет-магазина.
Тебе передают результат выполненной операции с каталогом в структурированном виде.
Сформулируй короткий ответ продавцу на русском языке своими словами.
Никогда не показывай идентификаторы, JSON, фигурные скобки или названия полей.`

// Heuristics catching raw structured payloads in model output. Second line
// of defense behind the prompt, not a replacement for it.
var leakPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\{\s*"`),
	regexp.MustCompile(`"\s*[\w-]+\s*"\s*:`),
	regexp.MustCompile(`\[\s*\{`),
	regexp.MustCompile("```"),
	regexp.MustCompile(`\b[\w]+_(?:id|count|percentage|quantity)\b\s*[:=]`),
}

// Synthesizer phrases operation outcomes, falling back to deterministic
// templates when the model is unavailable or leaks structure.
type Synthesizer struct {
	client llm.Client
	log    *logger.Logger
}

// New creates a synthesizer. A nil client means template-only operation.
func New(client llm.Client, log *logger.Logger) *Synthesizer {
	return &Synthesizer{client: client, log: log}
}

// Message renders the user-facing text for a tool result. The template
// fallback is always computed first; the model only rephrases successes.
func (s *Synthesizer) Message(ctx context.Context, command string, result *model.ToolCallResult) string {
	fallback := Template(result)
	if !result.Success || s.client == nil {
		return fallback
	}

	payload, err := json.Marshal(result.Data)
	if err != nil {
		return fallback
	}

	resp, err := s.client.Chat(ctx, &llm.ChatRequest{
		System: phrasingSystemPrompt,
		Messages: []llm.Message{
			{Role: string(model.RoleUser), Content: command},
			{Role: string(model.RoleUser), Content: "Результат операции: " + string(payload)},
		},
		Temperature: 0.7,
		MaxTokens:   512,
	})
	if err != nil {
		s.log.Warn("phrasing call failed, using template", zap.Error(err))
		return fallback
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" || LooksLikeLeak(text) {
		s.log.Warn("phrased response leaked structured data, using template")
		return fallback
	}
	return text
}

// LooksLikeLeak reports whether model output resembles a raw payload.
func LooksLikeLeak(text string) bool {
	for _, p := range leakPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// Template renders the deterministic message for any tool result.
func Template(result *model.ToolCallResult) string {
	switch {
	case result.Err != nil:
		return errorMessage(result.Err)
	case result.Clarification != nil:
		return clarificationMessage(result.Clarification)
	case result.Confirmation != nil:
		return confirmationMessage(result.Confirmation)
	case result.Data != nil:
		return successMessage(result.Data)
	default:
		return "Команда обработана."
	}
}

func errorMessage(e *model.OpError) string {
	switch e.Code {
	case model.ErrCodeProductNotFound, model.ErrCodeProductsNotFound:
		return e.Message + ". Проверьте название и попробуйте ещё раз."
	case model.ErrCodeValidation:
		return e.Message + "."
	case model.ErrCodeInsufficientStock:
		return e.Message + "."
	default:
		return "Не удалось выполнить операцию: " + e.Message + ". Попробуйте позже."
	}
}

func clarificationMessage(c *model.Clarification) string {
	var b strings.Builder
	b.WriteString("Нашлось несколько товаров, уточните, какой именно:\n")
	for i, cand := range c.Candidates {
		fmt.Fprintf(&b, "%d. %s — %s ₽\n", i+1, cand.Name, formatPrice(cand.Price))
	}
	return strings.TrimRight(b.String(), "\n")
}

func confirmationMessage(c *model.Confirmation) string {
	switch c.Operation {
	case string(executor.OpBulkDeleteAll):
		return fmt.Sprintf("Удалить все товары (%d шт.)? Это действие нельзя отменить.", c.AffectedCount)
	case string(executor.OpBulkPriceUpdate):
		verb := "снизить"
		if c.Direction == "increase" {
			verb = "повысить"
		}
		msg := fmt.Sprintf("Подтвердите: %s цены на %s%% для %d товаров", verb, trimFloat(c.Percentage), c.AffectedCount)
		if c.Duration > 0 {
			msg += " на " + executor.FormatDuration(c.Duration)
		}
		return msg + "."
	default:
		return "Подтвердите операцию."
	}
}

func successMessage(d *model.ResultData) string {
	switch d.Action {
	case string(executor.OpAddProduct):
		return fmt.Sprintf("Товар «%s» добавлен, цена %s ₽.", d.Product.Name, formatPrice(d.Product.Price))
	case string(executor.OpSetDiscount):
		if d.Product.HasDiscount() {
			return fmt.Sprintf("Скидка %s%% на «%s»: цена %s ₽ (было %s ₽).",
				trimFloat(d.Product.DiscountPercentage), d.Product.Name,
				formatPrice(d.Product.Price), formatPrice(d.Product.OriginalPrice))
		}
		return fmt.Sprintf("Скидка на «%s» снята, цена %s ₽.", d.Product.Name, formatPrice(d.Product.Price))
	case string(executor.OpUpdateProduct):
		return fmt.Sprintf("Товар «%s» обновлён: цена %s ₽, остаток %d шт.",
			d.Product.Name, formatPrice(d.Product.Price), d.Product.StockQuantity)
	case string(executor.OpDeleteProduct):
		if d.Product != nil {
			return fmt.Sprintf("Товар «%s» удалён.", d.Product.Name)
		}
		return fmt.Sprintf("Удалено товаров: %d.", d.DeletedCount)
	case string(executor.OpSearchProducts):
		var b strings.Builder
		fmt.Fprintf(&b, "Найдено по запросу «%s»:\n", d.Query)
		for _, p := range d.Products {
			fmt.Fprintf(&b, "• %s — %s ₽, остаток %d шт.\n", p.Name, formatPrice(p.Price), p.StockQuantity)
		}
		return strings.TrimRight(b.String(), "\n")
	case string(executor.OpBulkPriceUpdate):
		msg := fmt.Sprintf("Цены обновлены для %d товаров.", d.UpdatedCount)
		if len(d.Unmatched) > 0 {
			msg += " Не удалось распознать исключения: " + strings.Join(d.Unmatched, ", ") + "."
		}
		return msg
	case string(executor.OpBulkDeleteAll):
		return fmt.Sprintf("Каталог очищен, удалено товаров: %d.", d.DeletedCount)
	default:
		return "Готово."
	}
}

func formatPrice(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}

func trimFloat(v float64) string {
	return formatPrice(v)
}
