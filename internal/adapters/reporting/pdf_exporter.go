package reporting

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/arpgate/arpgate/internal/core/domain"
)

// PDFExporter renders the network inventory and blocking session to PDF.
type PDFExporter struct{}

// NewPDFExporter creates a new PDF exporter instance.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// SessionReport is the material a report is built from.
type SessionReport struct {
	Interface   string
	Subnet      string
	GatewayIP   string
	GeneratedAt time.Time
	Devices     []domain.Device
	Blocked     []domain.BlockedDeviceInfo
}

// Export generates the PDF for one session snapshot.
func (e *PDFExporter) Export(report SessionReport) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	e.addHeader(pdf, report)
	e.addDeviceTable(pdf, report.Devices)
	e.addBlockedSection(pdf, report.Blocked)
	e.addFooter(pdf, report)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *PDFExporter) addHeader(pdf *gofpdf.Fpdf, report SessionReport) {
	pdf.SetFont("Arial", "B", 22)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 14, "Network Control Report", "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(80, 80, 80)
	pdf.CellFormat(0, 6, fmt.Sprintf("Interface: %s    Subnet: %s    Gateway: %s",
		report.Interface, report.Subnet, report.GatewayIP), "", 1, "L", false, 0, "")
	pdf.Ln(4)
}

func (e *PDFExporter) addDeviceTable(pdf *gofpdf.Fpdf, devices []domain.Device) {
	pdf.SetFont("Arial", "B", 13)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 9, fmt.Sprintf("Discovered Devices (%d)", len(devices)), "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	pdf.CellFormat(30, 7, "IP", "1", 0, "L", true, 0, "")
	pdf.CellFormat(38, 7, "MAC", "1", 0, "L", true, 0, "")
	pdf.CellFormat(52, 7, "Hostname", "1", 0, "L", true, 0, "")
	pdf.CellFormat(20, 7, "Gateway", "1", 0, "C", true, 0, "")
	pdf.CellFormat(20, 7, "Blocked", "1", 0, "C", true, 0, "")
	pdf.CellFormat(30, 7, "Last Seen", "1", 1, "L", true, 0, "")

	pdf.SetFont("Arial", "", 9)
	for _, d := range devices {
		hostname := d.Hostname
		if hostname == "" {
			hostname = "-"
		}
		pdf.CellFormat(30, 6, d.IP.String(), "1", 0, "L", false, 0, "")
		pdf.CellFormat(38, 6, d.MAC.String(), "1", 0, "L", false, 0, "")
		pdf.CellFormat(52, 6, hostname, "1", 0, "L", false, 0, "")
		pdf.CellFormat(20, 6, yesNo(d.IsGateway), "1", 0, "C", false, 0, "")
		pdf.CellFormat(20, 6, yesNo(d.IsBlocked), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, d.LastSeen.Format("15:04:05"), "1", 1, "L", false, 0, "")
	}
	pdf.Ln(6)
}

func (e *PDFExporter) addBlockedSection(pdf *gofpdf.Fpdf, blocked []domain.BlockedDeviceInfo) {
	pdf.SetFont("Arial", "B", 13)
	pdf.CellFormat(0, 9, fmt.Sprintf("Active Blocks (%d)", len(blocked)), "", 1, "L", false, 0, "")

	if len(blocked) == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 6, "No devices are currently blocked.", "", 1, "L", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
		pdf.Ln(4)
		return
	}

	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(250, 220, 220)
	pdf.CellFormat(32, 7, "IP", "1", 0, "L", true, 0, "")
	pdf.CellFormat(40, 7, "MAC", "1", 0, "L", true, 0, "")
	pdf.CellFormat(42, 7, "Blocked At", "1", 0, "L", true, 0, "")
	pdf.CellFormat(36, 7, "Poison Frames", "1", 1, "R", true, 0, "")

	pdf.SetFont("Arial", "", 9)
	for _, b := range blocked {
		pdf.CellFormat(32, 6, b.IP.String(), "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, b.MAC.String(), "1", 0, "L", false, 0, "")
		pdf.CellFormat(42, 6, b.BlockedAt.Format("2006-01-02 15:04:05"), "1", 0, "L", false, 0, "")
		pdf.CellFormat(36, 6, fmt.Sprintf("%d", b.PacketsSent), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(4)
}

func (e *PDFExporter) addFooter(pdf *gofpdf.Fpdf, report SessionReport) {
	pdf.SetY(-20)
	pdf.SetFont("Arial", "I", 8)
	pdf.SetTextColor(120, 120, 120)
	pdf.CellFormat(0, 5, fmt.Sprintf("Generated %s by arpgate", report.GeneratedAt.Format(time.RFC1123)), "", 1, "C", false, 0, "")
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
