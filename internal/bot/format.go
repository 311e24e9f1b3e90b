package bot

import (
	"fmt"
	"html"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/Houeta/edition-tracker/internal/models"
)

const historyLimit = 10

func formatAlerts(a models.Alerts) string {
	var sb strings.Builder
	for _, title := range sortedKeys(a.EarlyAccessOver) {
		fmt.Fprintf(&sb, "Early Access Phase of <b>%s</b> is over, remaining stock: %d\n",
			html.EscapeString(title), a.EarlyAccessOver[title])
	}
	for _, title := range sortedKeys(a.Back) {
		fmt.Fprintf(&sb, "<b>%s</b> is available again, with a stock of %d\n", html.EscapeString(title), a.Back[title])
	}
	for _, title := range sortedKeys(a.SoldOut) {
		fmt.Fprintf(&sb, "<b>%s</b> sold out!\n", html.EscapeString(title))
	}
	for _, title := range sortedKeys(a.StockLevel) {
		fmt.Fprintf(&sb, "Stock of <b>%s</b> went below %d, grab it while you can!\n",
			html.EscapeString(title), a.StockLevel[title])
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func formatRegular(stock map[string]int, at time.Time) string {
	return fmt.Sprintf("<b>Regular Stock Update for %s</b>\n\n%s", at.Format("January 02 15:04 MST"), formatStockLines(stock))
}

func formatStockReport(stock map[string]int, at time.Time) string {
	if len(stock) == 0 {
		return "Sorry, no stock data available"
	}
	return fmt.Sprintf("<b>Stock Report</b>\n<i>%s</i>\n\n%s", at.Format("2006-01-02 15:04 MST"), formatStockLines(stock))
}

func formatStockLines(stock map[string]int) string {
	lines := make([]string, 0, len(stock))
	for _, title := range sortedKeys(stock) {
		lines = append(lines, fmt.Sprintf("<b>%s</b>: %d", html.EscapeString(title), stock[title]))
	}
	return strings.Join(lines, "\n")
}

// formatRevealCaption renders "MM/DD/YYYY - title" from a "YYYY-MM-DD hh:mm:ss" start date.
func formatRevealCaption(r *models.Reveal) string {
	date := r.StartDate
	if day, _, _ := strings.Cut(r.StartDate, " "); day != "" {
		if parts := strings.Split(day, "-"); len(parts) == 3 {
			date = parts[1] + "/" + parts[2] + "/" + parts[0]
		}
	}
	if date == "" {
		return html.EscapeString(r.Title)
	}
	return html.EscapeString(date + " - " + r.Title)
}

func formatHistory(title string, records []models.StockRecord, loc *time.Location) string {
	if len(records) > historyLimit {
		records = records[len(records)-historyLimit:]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>%s</b>", html.EscapeString(title))
	for _, rec := range records {
		fmt.Fprintf(&sb, "\n%s: %d", rec.Time.In(loc).Format("2006-01-02 15:04"), rec.Stock)
	}
	return sb.String()
}

func formatAbbreviations(abbr map[string]string, title string) string {
	var lines []string
	for _, key := range sortedKeys(abbr) {
		if title != "" && !strings.EqualFold(abbr[key], title) {
			continue
		}
		lines = append(lines, fmt.Sprintf("<b>%s</b>: %s", html.EscapeString(abbr[key]), html.EscapeString(key)))
	}
	if len(lines) == 0 {
		return "Sorry, no abbreviations available"
	}
	return strings.Join(lines, "\n")
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
