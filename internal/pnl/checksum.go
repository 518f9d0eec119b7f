package pnl

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
)

const checksumDateLayout = "2006-01-02"

// SortRevenue orders rows by date then id in place.
func SortRevenue(rows []RevenueRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		return lessByDateID(rows[i].Date, rows[i].ID, rows[j].Date, rows[j].ID)
	})
}

// SortExpenses orders rows by date then id in place.
func SortExpenses(rows []ExpenseRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		return lessByDateID(rows[i].Date, rows[i].ID, rows[j].Date, rows[j].ID)
	})
}

func lessByDateID(di time.Time, ii int64, dj time.Time, ij int64) bool {
	if !di.Equal(dj) {
		return di.Before(dj)
	}
	return ii < ij
}

// RevenueChecksum hashes the canonical form of already ordered revenue rows.
func RevenueChecksum(rows []RevenueRow) string {
	h := sha256.New()
	for _, r := range rows {
		writeLine(h, r.ID, r.Date, r.Source, r.Amount.String())
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ExpenseChecksum hashes the canonical form of already ordered expense rows.
func ExpenseChecksum(rows []ExpenseRow) string {
	h := sha256.New()
	for _, r := range rows {
		writeLine(h, r.ID, r.Date, r.Category, r.Amount.String())
	}
	return hex.EncodeToString(h.Sum(nil))
}

// writeLine emits "id|date|label|amount\n". Pipes and newlines in labels are
// escaped so distinct row sets never serialise identically.
func writeLine(w io.Writer, id int64, date time.Time, label, amount string) {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(id, 10))
	b.WriteByte('|')
	b.WriteString(date.Format(checksumDateLayout))
	b.WriteByte('|')
	b.WriteString(labelEscaper.Replace(label))
	b.WriteByte('|')
	b.WriteString(amount)
	b.WriteByte('\n')
	_, _ = w.Write([]byte(b.String()))
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, "|", `\|`, "\n", `\n`)
