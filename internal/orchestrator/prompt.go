package orchestrator

import (
	"fmt"
	"strings"

	"github.com/shoplens-ai/catalog-assistant/internal/model"
)

// maxPromptProducts caps how many catalog rows enter the system prompt.
const maxPromptProducts = 100

// systemPrompt renders the tool-calling system prompt for one command: the
// shop identity, the current catalog snapshot and the recent product context.
func systemPrompt(snapshot *model.Snapshot, aiCtx *model.AIContext) string {
	var b strings.Builder

	b.WriteString("Ты — ассистент продавца интернет-магазина")
	if snapshot.ShopName != "" {
		fmt.Fprintf(&b, " «%s»", snapshot.ShopName)
	}
	b.WriteString(".\n")
	b.WriteString("Продавец управляет каталогом товаров командами на русском языке.\n")
	b.WriteString("Используй инструменты для любых изменений каталога. ")
	b.WriteString("Никогда не придумывай идентификаторы товаров: бери их только из списка ниже. ")
	b.WriteString("Если команда неоднозначна, задай уточняющий вопрос вместо вызова инструмента.\n")
	b.WriteString("Отвечай кратко и по-русски. Не показывай JSON и идентификаторы в тексте ответа.\n\n")

	b.WriteString("Товары магазина:\n")
	if len(snapshot.Products) == 0 {
		b.WriteString("(каталог пуст)\n")
	}
	for i, p := range snapshot.Products {
		if i >= maxPromptProducts {
			fmt.Fprintf(&b, "… и ещё %d товаров\n", len(snapshot.Products)-maxPromptProducts)
			break
		}
		fmt.Fprintf(&b, "- id=%s «%s», цена %.2f ₽, остаток %d шт.", p.ID, p.Name, p.Price, p.StockQuantity)
		if p.HasDiscount() {
			fmt.Fprintf(&b, ", скидка %.0f%% (обычная цена %.2f ₽)", p.DiscountPercentage, p.OriginalPrice)
		}
		b.WriteString("\n")
	}

	if aiCtx != nil && aiCtx.LastProductName != "" {
		b.WriteString("\nКонтекст диалога:\n")
		fmt.Fprintf(&b, "Последний упомянутый товар: «%s» (id=%s, действие: %s).\n",
			aiCtx.LastProductName, aiCtx.LastProductID, aiCtx.LastAction)
		if len(aiCtx.RecentProducts) > 1 {
			b.WriteString("Недавние товары: ")
			names := make([]string, 0, len(aiCtx.RecentProducts))
			for _, ref := range aiCtx.RecentProducts {
				names = append(names, "«"+ref.Name+"»")
			}
			b.WriteString(strings.Join(names, ", "))
			b.WriteString(".\n")
		}
		b.WriteString("Местоимения («него», «этот товар») относятся к последнему упомянутому товару.\n")
	}

	return b.String()
}
