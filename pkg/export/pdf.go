package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/verbalink/verbalink-api/pkg/money"
)

// Receipt carries everything a payment receipt needs to render.
type Receipt struct {
	PaymentID     string
	BookingID     string
	StudentName   string
	TeacherName   string
	GigTitle      string
	SessionStart  time.Time
	SessionEnd    time.Time
	AmountCents   int64
	FeeCents      int64
	TotalCents    int64
	Currency      string
	PaidAt        time.Time
}

// RenderReceiptPDF produces a one-page PDF receipt for a succeeded payment.
func RenderReceiptPDF(r Receipt) ([]byte, error) {
	if r.PaymentID == "" {
		return nil, fmt.Errorf("receipt requires a payment id")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "PAYMENT RECEIPT", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "", 10)
	line := func(label, value string) {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(50, 7, label, "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 7, value, "", 1, "L", false, 0, "")
	}

	line("Receipt no.", r.PaymentID)
	line("Booking", r.BookingID)
	line("Student", r.StudentName)
	line("Teacher", r.TeacherName)
	line("Lesson", r.GigTitle)
	line("Session", fmt.Sprintf("%s - %s",
		r.SessionStart.UTC().Format(time.RFC3339),
		r.SessionEnd.UTC().Format(time.RFC3339)))
	line("Paid at", r.PaidAt.UTC().Format(time.RFC3339))
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(120, 8, "Description", "B", 0, "L", false, 0, "")
	pdf.CellFormat(0, 8, "Amount", "B", 1, "R", false, 0, "")

	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(120, 8, "Session cost", "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 8, money.Format(r.AmountCents, r.Currency), "", 1, "R", false, 0, "")
	pdf.CellFormat(120, 8, "Platform fee", "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 8, money.Format(r.FeeCents, r.Currency), "", 1, "R", false, 0, "")

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(120, 9, "Total charged", "T", 0, "L", false, 0, "")
	pdf.CellFormat(0, 9, money.Format(r.TotalCents, r.Currency), "T", 1, "R", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render receipt pdf: %w", err)
	}
	return buf.Bytes(), nil
}
