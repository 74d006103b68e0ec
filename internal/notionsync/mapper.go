package notionsync

import (
	"time"

	"github.com/dvloznov/family-bank/internal/domain"
	"github.com/jomei/notionapi"
	"github.com/shopspring/decimal"
)

// Property names of the mirror database.
const (
	propTitle        = "Description"
	propTxID         = "Transaction ID"
	propMember       = "Member"
	propType         = "Type"
	propAmount       = "Amount"
	propBalanceAfter = "Balance After"
	propDate         = "Date"
	propRecordedBy   = "Recorded By"
	propHousehold    = "Household"
)

// Entry is one ledger row as mirrored to Notion.
type Entry struct {
	HouseholdID  string
	MemberName   string
	Transaction  *domain.Transaction
	BalanceAfter decimal.Decimal
}

// Title is the page title: the note, or a generated label when it is empty.
func (e Entry) Title() string {
	if e.Transaction.Note != "" {
		return e.Transaction.Note
	}
	switch e.Transaction.Type {
	case domain.TypeIncome:
		return "Deposit"
	case domain.TypeExpense:
		return "Withdrawal"
	default:
		return "Interest"
	}
}

func richText(content string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{
				Content: content,
			},
		},
	}
}

func number(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// EntryToNotionProperties converts a ledger entry to Notion properties.
// Amounts are signed so a Notion sum column equals the balance.
func EntryToNotionProperties(e Entry) notionapi.Properties {
	tx := e.Transaction
	props := notionapi.Properties{
		propTitle: notionapi.TitleProperty{
			Title: richText(e.Title()),
		},
		propTxID: notionapi.RichTextProperty{
			RichText: richText(tx.ID),
		},
		propType: notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(tx.Type)},
		},
		propAmount: notionapi.NumberProperty{
			Number: number(tx.Signed()),
		},
		propBalanceAfter: notionapi.NumberProperty{
			Number: number(e.BalanceAfter),
		},
		propDate: notionapi.DateProperty{
			Date: &notionapi.DateObject{
				Start: func() *notionapi.Date {
					d := notionapi.Date(time.UnixMilli(tx.Timestamp).UTC())
					return &d
				}(),
			},
		},
	}

	if e.MemberName != "" {
		props[propMember] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: e.MemberName},
		}
	}

	if e.HouseholdID != "" {
		props[propHousehold] = notionapi.RichTextProperty{
			RichText: richText(e.HouseholdID),
		}
	}

	// Legacy rows carry no actor.
	if tx.RecordedBy != "" {
		props[propRecordedBy] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: tx.RecordedBy},
		}
	}

	return props
}

// pageState is what the sync compares to decide whether a page is stale.
type pageState struct {
	TransactionID string
	Title         string
	Amount        float64
	BalanceAfter  float64
	HasAmount     bool
}

func readPage(page notionapi.Page) pageState {
	var st pageState
	st.TransactionID = plainText(page.Properties[propTxID])
	st.Title = plainText(page.Properties[propTitle])
	if n, ok := page.Properties[propAmount].(*notionapi.NumberProperty); ok {
		st.Amount = n.Number
		st.HasAmount = true
	}
	if n, ok := page.Properties[propBalanceAfter].(*notionapi.NumberProperty); ok {
		st.BalanceAfter = n.Number
	}
	return st
}

// upToDate reports whether page already mirrors e.
func (st pageState) upToDate(e Entry) bool {
	return st.HasAmount &&
		st.Title == e.Title() &&
		st.Amount == number(e.Transaction.Signed()) &&
		st.BalanceAfter == number(e.BalanceAfter)
}

func plainText(prop notionapi.Property) string {
	var parts []notionapi.RichText
	switch p := prop.(type) {
	case *notionapi.RichTextProperty:
		parts = p.RichText
	case *notionapi.TitleProperty:
		parts = p.Title
	default:
		return ""
	}

	var out string
	for _, rt := range parts {
		if rt.PlainText != "" {
			out += rt.PlainText
		} else if rt.Text != nil {
			out += rt.Text.Content
		}
	}
	return out
}
