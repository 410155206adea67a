package email

import (
	"fmt"
	"html"
	"strings"

	"github.com/shopspring/decimal"
)

// ReceiptLine represents a purchased track for email purposes
type ReceiptLine struct {
	Title      string
	ArtistName string
	UnitPrice  decimal.Decimal
	Quantity   int
}

func ReceiptSubject(orderID int64) string {
	return fmt.Sprintf("Your TuneStore receipt (order #%d)", orderID)
}

func OrderStatusSubject(orderID int64, status string) string {
	return fmt.Sprintf("Order #%d is now %s", orderID, status)
}

func TicketReplySubject(ticketID int64, subject string) string {
	return fmt.Sprintf("New reply on ticket #%d: %s", ticketID, subject)
}

func TicketStatusSubject(ticketID int64, status string) string {
	return fmt.Sprintf("Ticket #%d is now %s", ticketID, status)
}

// BuildReceiptBody builds the HTML body of the purchase receipt
func BuildReceiptBody(orderID int64, total decimal.Decimal, lines []ReceiptLine) string {
	var rows strings.Builder
	for _, line := range lines {
		qty := line.Quantity
		if qty < 1 {
			qty = 1
		}
		rows.WriteString(fmt.Sprintf(
			`<tr>
				<td style="padding: 12px; border-bottom: 1px solid #eee;">%s<br><span style="color: #888; font-size: 13px;">%s</span></td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: center;">%d</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">$%s</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">$%s</td>
			</tr>`,
			html.EscapeString(line.Title),
			html.EscapeString(line.ArtistName),
			qty,
			FormatMoney(line.UnitPrice),
			FormatMoney(line.UnitPrice.Mul(decimal.NewFromInt(int64(qty)))),
		))
	}

	content := fmt.Sprintf(`<p style="margin-top: 0;">Thanks for your purchase. Your tracks are ready to download.</p>

		<div style="background: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0;">
			<p style="margin: 0; font-size: 14px; color: #666;">Order number</p>
			<p style="margin: 5px 0 0 0; font-size: 18px; font-weight: bold; font-family: monospace;">#%d</p>
		</div>

		<table style="width: 100%%; border-collapse: collapse; margin: 20px 0;">
			<thead>
				<tr style="background: #f8f9fa;">
					<th style="padding: 12px; text-align: left; font-weight: 600;">Track</th>
					<th style="padding: 12px; text-align: center; font-weight: 600;">Qty</th>
					<th style="padding: 12px; text-align: right; font-weight: 600;">Price</th>
					<th style="padding: 12px; text-align: right; font-weight: 600;">Subtotal</th>
				</tr>
			</thead>
			<tbody>
				%s
			</tbody>
		</table>

		<div style="text-align: right; padding: 20px; background: #f8f9fa; border-radius: 5px;">
			<span style="font-size: 14px; color: #666;">Total</span>
			<span style="font-size: 24px; font-weight: bold; color: #667eea; margin-left: 10px;">$%s</span>
		</div>`, orderID, rows.String(), FormatMoney(total))

	return layout("Thank you for your order", content)
}

// BuildOrderStatusBody tells the customer an order moved to a new status
func BuildOrderStatusBody(orderID int64, previous, current, reason string) string {
	content := fmt.Sprintf(`<p style="margin-top: 0;">Order <strong>#%d</strong> changed from <strong>%s</strong> to <strong>%s</strong>.</p>`,
		orderID, html.EscapeString(previous), html.EscapeString(current))
	if reason != "" {
		content += fmt.Sprintf(`
		<p>Reason: %s</p>`, html.EscapeString(reason))
	}
	return layout("Order update", content)
}

// BuildTicketReplyBody forwards a staff reply to the customer
func BuildTicketReplyBody(ticketID int64, subject, message string) string {
	content := fmt.Sprintf(`<p style="margin-top: 0;">Our support team replied to ticket <strong>#%d</strong> (%s):</p>

		<blockquote style="background: #f8f9fa; padding: 15px; border-left: 4px solid #667eea; margin: 20px 0; white-space: pre-wrap;">%s</blockquote>`,
		ticketID, html.EscapeString(subject), html.EscapeString(message))
	return layout("New reply from support", content)
}

// BuildTicketStatusBody tells the customer a ticket moved to a new status
func BuildTicketStatusBody(ticketID int64, subject, previous, current string) string {
	content := fmt.Sprintf(`<p style="margin-top: 0;">Ticket <strong>#%d</strong> (%s) changed from <strong>%s</strong> to <strong>%s</strong>.</p>`,
		ticketID, html.EscapeString(subject), html.EscapeString(previous), html.EscapeString(current))
	return layout("Support ticket update", content)
}

func layout(heading, content string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background: linear-gradient(135deg, #667eea 0%%, #764ba2 100%%); padding: 30px; border-radius: 10px 10px 0 0;">
		<h1 style="color: white; margin: 0; font-size: 24px;">%s</h1>
	</div>

	<div style="background: #fff; padding: 30px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">
		%s

		<hr style="border: none; border-top: 1px solid #eee; margin: 30px 0;">

		<p style="font-size: 12px; color: #999; margin-bottom: 0;">
			This message was sent automatically. If you have questions, reply through your support tickets.
		</p>
	</div>
</body>
</html>`, html.EscapeString(heading), content)
}

// FormatMoney renders a price with two decimals and comma separators
func FormatMoney(d decimal.Decimal) string {
	whole, frac, _ := strings.Cut(d.Abs().StringFixed(2), ".")

	var result strings.Builder
	if d.IsNegative() {
		result.WriteString("-")
	}
	for i, c := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			result.WriteString(",")
		}
		result.WriteRune(c)
	}
	result.WriteString(".")
	result.WriteString(frac)
	return result.String()
}
