package utils

import "strings"

// TicketCode derives the short code printed next to a ticket's QR image.
// It is stable for a ticket id so a re-sent confirmation shows the same code.
func TicketCode(ticketID string) string {
	code := strings.ToUpper(ticketID)
	if len(code) > 8 {
		code = code[len(code)-8:]
	}
	return "PF-" + code
}
