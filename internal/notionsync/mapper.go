package notionsync

import (
	"time"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/statement-engine/internal/domain"
)

// transactionIDProperty is the Notion property used as the idempotency key:
// sync matches pages to transactions through it.
const transactionIDProperty = "Transaction ID"

// TransactionToNotionProperties converts a committed transaction to the
// property set of the Notion transactions database.
func TransactionToNotionProperties(t *domain.Transaction) notionapi.Properties {
	props := notionapi.Properties{
		"Description": notionapi.TitleProperty{
			Title: richText(t.Description),
		},
		transactionIDProperty: notionapi.RichTextProperty{
			RichText: richText(t.TransactionID),
		},
		// Notion numbers are decimals; amounts convert from minor units.
		"Amount": notionapi.NumberProperty{
			Number: float64(t.Amount) / 100,
		},
		"Credit": notionapi.CheckboxProperty{
			Checkbox: t.IsCredit,
		},
	}

	start := notionapi.Date(t.Date.In(time.UTC))
	props["Date"] = notionapi.DateProperty{
		Date: &notionapi.DateObject{Start: &start},
	}

	if t.Currency != "" {
		props["Currency"] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: t.Currency},
		}
	}
	if t.CategoryName != "" {
		props["Category"] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: t.CategoryName},
		}
	}
	if t.MerchantName != "" {
		props["Merchant"] = notionapi.RichTextProperty{
			RichText: richText(t.MerchantName),
		}
	}
	if t.AccountID != "" {
		props["Account"] = notionapi.RichTextProperty{
			RichText: richText(t.AccountID),
		}
	}

	return props
}

// extractTransactionID reads the idempotency key back out of a Notion page.
// Pages created outside the sync have no such property and return "".
func extractTransactionID(page notionapi.Page) string {
	prop, ok := page.Properties[transactionIDProperty]
	if !ok {
		return ""
	}

	// The SDK decodes query responses into pointer types, but properties
	// built locally are values. Accept both.
	switch p := prop.(type) {
	case *notionapi.RichTextProperty:
		return flattenRichText(p.RichText)
	case notionapi.RichTextProperty:
		return flattenRichText(p.RichText)
	}
	return ""
}

func richText(content string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: content},
		},
	}
}

func flattenRichText(parts []notionapi.RichText) string {
	var out string
	for _, rt := range parts {
		out += rt.PlainText
		if rt.PlainText == "" && rt.Text != nil {
			out += rt.Text.Content
		}
	}
	return out
}
