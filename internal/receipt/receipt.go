// Package receipt renders a printable PDF receipt for a placed order.
package receipt

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"storefront/internal/models"

	"github.com/phpdave11/gofpdf"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
)

// StoreName is printed in the receipt header
const StoreName = "Pureza Naturalis"

var paymentLabels = map[models.PaymentType]string{
	models.PaymentCreditCard:     "Tarjeta de crédito",
	models.PaymentDebitCard:      "Tarjeta de débito",
	models.PaymentBankTransfer:   "Transferencia bancaria",
	models.PaymentCashOnDelivery: "Pago contra entrega",
}

// QRPayload is the text encoded in the receipt QR code
func QRPayload(order models.OrderRecord) string {
	return fmt.Sprintf("pureza-naturalis:order:%s", order.ID)
}

// Render builds the PDF receipt of order
func Render(order models.OrderRecord) ([]byte, error) {
	if order.ID == "" {
		return nil, fmt.Errorf("order id is required")
	}

	qrPNG, err := qrcode.Encode(QRPayload(order), qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(tr("Pedido "+order.ID), false)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 18)
	pdf.Cell(0, 10, tr(StoreName))
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 12)
	pdf.Cell(0, 8, tr(fmt.Sprintf("Pedido #%s", order.ID)))
	pdf.Ln(6)
	pdf.Cell(0, 8, tr(fmt.Sprintf("Fecha: %s", displayDate(order.Date))))
	pdf.Ln(6)
	pdf.Cell(0, 8, tr(fmt.Sprintf("Estado: %s", order.Status)))
	pdf.Ln(12)

	imageOpts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr", imageOpts, bytes.NewReader(qrPNG))
	pdf.ImageOptions("qr", 160, 10, 35, 35, false, imageOpts, 0, "")

	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, tr("Dirección de envío"))
	pdf.Ln(7)
	pdf.SetFont("Arial", "", 11)
	for _, line := range addressLines(order.ShippingAddress) {
		pdf.Cell(0, 6, tr(line))
		pdf.Ln(5)
	}
	pdf.Ln(4)
	pdf.Cell(0, 6, tr("Método de pago: "+paymentLabel(order.PaymentType)))
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 11)
	pdf.SetFillColor(235, 242, 235)
	pdf.CellFormat(100, 8, tr("Producto"), "1", 0, "L", true, 0, "")
	pdf.CellFormat(20, 8, tr("Cant."), "1", 0, "C", true, 0, "")
	pdf.CellFormat(35, 8, tr("Precio"), "1", 0, "R", true, 0, "")
	pdf.CellFormat(35, 8, tr("Subtotal"), "1", 1, "R", true, 0, "")

	pdf.SetFont("Arial", "", 11)
	for _, item := range order.Items {
		subtotal := item.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		pdf.CellFormat(100, 7, tr(truncate(item.Name, 48)), "1", 0, "L", false, 0, "")
		pdf.CellFormat(20, 7, fmt.Sprintf("%d", item.Quantity), "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 7, money(item.Price), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 7, money(subtotal), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(4)

	rows := []struct {
		label string
		value decimal.Decimal
	}{
		{"Subtotal", order.Summary.Subtotal},
		{"Envío", order.Summary.Shipping},
		{"Impuestos", order.Summary.Tax},
		{"Descuento", order.Summary.Discount},
	}
	for _, r := range rows {
		pdf.CellFormat(155, 6, tr(r.label), "", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, money(r.value), "", 1, "R", false, 0, "")
	}
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(155, 8, "Total", "", 0, "R", false, 0, "")
	pdf.CellFormat(35, 8, money(order.Summary.Total), "", 1, "R", false, 0, "")

	if order.OrderNotes != "" {
		pdf.Ln(6)
		pdf.SetFont("Arial", "I", 10)
		pdf.MultiCell(0, 5, tr("Notas: "+order.OrderNotes), "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func addressLines(a models.ShippingAddress) []string {
	street := a.Street
	if a.Apartment != "" {
		street += ", " + a.Apartment
	}
	lines := []string{strings.TrimSpace(a.FirstName + " " + a.LastName)}
	if a.Company != "" {
		lines = append(lines, a.Company)
	}
	return append(lines,
		street,
		strings.Trim(fmt.Sprintf("%s, %s %s", a.City, a.State, a.PostalCode), ", "),
		a.Country,
		"Tel: "+a.Phone,
	)
}

func paymentLabel(t models.PaymentType) string {
	if label, ok := paymentLabels[t]; ok {
		return label
	}
	return string(t)
}

func displayDate(iso string) string {
	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		return iso
	}
	return t.Format("02/01/2006 15:04")
}

func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
