// Package export renders quote results as spreadsheet downloads.
package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"parcelquote/internal/rate"
)

type Format string

const (
	XLSX Format = "xlsx"
	CSV  Format = "csv"
)

var ErrUnsupportedFormat = errors.New("unsupported export format")

// Options selects the output. Country only labels the file.
type Options struct {
	Format  Format
	Lang    string
	Country string
}

// File is a rendered download.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

var columns = []string{
	keyIndex, keyCompany, keyChannel, keyCountry, keyTransport, keyTransit,
	keyActualWeight, keyVolumeWeight, keyChargeWeight, keyUnitPrice,
	keyIntl, keyDomestic, keyService, keyRegistration,
	keyTotalShipping, keyProductCost, keyTotal, keyTotalCNY, keyTags,
}

// Render writes one row per result, in the given order.
func Render(results []rate.QuoteResult, opts Options) (File, error) {
	tr := NewTranslator(opts.Lang)
	format := Format(strings.ToLower(string(opts.Format)))
	if format == "" {
		format = XLSX
	}

	header := make([]string, len(columns))
	for i, k := range columns {
		header[i] = tr.T(k)
	}
	rows := make([][]any, 0, len(results))
	for i, q := range results {
		rows = append(rows, row(tr, i+1, q))
	}

	name := fileName(tr, opts.Country, format)
	switch format {
	case XLSX:
		data, err := renderXLSX(tr.T(keySheet), header, rows)
		if err != nil {
			return File{}, err
		}
		return File{Name: name, ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", Data: data}, nil
	case CSV:
		data, err := renderCSV(header, rows)
		if err != nil {
			return File{}, err
		}
		return File{Name: name, ContentType: "text/csv; charset=utf-8", Data: data}, nil
	default:
		return File{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, opts.Format)
	}
}

func row(tr *Translator, n int, q rate.QuoteResult) []any {
	return []any{
		n,
		q.Channel.Company,
		q.Channel.ChannelName,
		q.Channel.Country,
		q.Channel.TransportType,
		tr.TransitTime(q.Channel.TimeRange),
		q.ActualWeight,
		q.VolumeWeight,
		q.ChargeWeight,
		q.Channel.PriceUSD,
		q.InternationalShippingUSD,
		q.DomesticShippingUSD,
		q.ServiceFeeUSD,
		q.RegistrationFeeCNY,
		q.TotalShippingUSD,
		q.ProductCost,
		q.TotalCost,
		q.TotalCostCNY,
		tags(tr, q),
	}
}

func tags(tr *Translator, q rate.QuoteResult) string {
	var out []string
	if q.IsCheapest {
		out = append(out, tr.T(keyCheapest))
	}
	if q.IsFastest {
		out = append(out, tr.T(keyFastest))
	}
	if q.IsRecommended {
		out = append(out, tr.T(keyRecommended))
	}
	return strings.Join(out, ", ")
}

func fileName(tr *Translator, country string, f Format) string {
	if country == "" {
		country = tr.T(keyAllCountries)
	}
	country = strings.NewReplacer("/", "_", "\\", "_", "\"", "", " ", "_").Replace(country)
	return fmt.Sprintf("quotes_%s_%s.%s", country, uuid.NewString()[:8], f)
}

func renderXLSX(sheet string, header []string, rows [][]any) ([]byte, error) {
	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	if err := xl.SetSheetName(xl.GetSheetName(0), sheet); err != nil {
		return nil, err
	}
	if err := xl.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}
	bold, err := xl.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	lastCol, _ := excelize.ColumnNumberToName(len(header))
	if err := xl.SetCellStyle(sheet, "A1", lastCol+"1", bold); err != nil {
		return nil, err
	}
	if err := xl.SetColWidth(sheet, "B", lastCol, 16); err != nil {
		return nil, err
	}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := xl.SetSheetRow(sheet, cell, &r); err != nil {
			return nil, err
		}
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

// utf8BOM lets spreadsheet apps detect UTF-8 in the CSV.
const utf8BOM = "\xEF\xBB\xBF"

func renderCSV(header []string, rows [][]any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(utf8BOM)
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, r := range rows {
		rec := make([]string, len(r))
		for i, v := range r {
			rec[i] = cellString(v)
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}

func cellString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', 2, 64)
	default:
		return fmt.Sprint(x)
	}
}
