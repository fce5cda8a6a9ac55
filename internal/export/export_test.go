package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"parcelquote/internal/rate"
)

func sampleResults() []rate.QuoteResult {
	return []rate.QuoteResult{
		{
			Channel: rate.ChannelSnapshot{
				ID: "rec1", ChannelName: "特惠普货", Company: "云途物流", TransportType: "空运",
				Country: "美国", TimeRange: "7-10", PriceUSD: 7.14,
			},
			ActualWeight: 5, VolumeWeight: 1.5, ChargeWeight: 5,
			InternationalShippingUSD: 37.86, DomesticShippingUSD: 1, ServiceFeeUSD: 1.2,
			RegistrationFeeCNY: 15, TotalShippingUSD: 40.06, TotalCost: 40.06, TotalCostCNY: 280.4,
			IsCheapest: true, IsFastest: true,
		},
		{
			Channel: rate.ChannelSnapshot{
				ID: "rec2", ChannelName: "特惠带电", Company: "云途物流", TransportType: "空运",
				Country: "美国", TimeRange: "8-12工作日",
			},
			TotalCost: 45.5, IsRecommended: true,
		},
	}
}

func TestTranslator(t *testing.T) {
	assert.Equal(t, "zh", NewTranslator("").Lang())
	assert.Equal(t, "zh", NewTranslator("zh-CN").Lang())
	assert.Equal(t, "en", NewTranslator("en-US").Lang())
	assert.Equal(t, "en", NewTranslator("en").Lang())
	assert.Equal(t, "zh", NewTranslator("xx").Lang())

	zh, en := NewTranslator("zh"), NewTranslator("en")
	assert.Equal(t, "7-10天", zh.TransitTime("7-10"))
	assert.Equal(t, "7-10 days", en.TransitTime("7-10"))
	assert.Equal(t, "8-12工作日", en.TransitTime("8-12工作日"))
	assert.Equal(t, "", zh.TransitTime(""))
	assert.Equal(t, "最便宜", zh.T(keyCheapest))
	assert.Equal(t, "unknown-key", zh.T("unknown-key"))
}

func TestRenderCSV(t *testing.T) {
	f, err := Render(sampleResults(), Options{Format: CSV, Lang: "en", Country: "美国"})
	require.NoError(t, err)
	assert.Equal(t, "text/csv; charset=utf-8", f.ContentType)
	assert.True(t, strings.HasPrefix(f.Name, "quotes_美国_"))
	assert.True(t, strings.HasSuffix(f.Name, ".csv"))
	require.True(t, bytes.HasPrefix(f.Data, []byte(utf8BOM)))

	records, err := csv.NewReader(bytes.NewReader(f.Data[len(utf8BOM):])).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "No.", records[0][0])
	assert.Equal(t, "Tags", records[0][len(records[0])-1])
	assert.Equal(t, []string{"1", "云途物流", "特惠普货", "美国", "空运", "7-10 days"}, records[1][:6])
	assert.Equal(t, "40.06", records[1][16])
	assert.Equal(t, "280.40", records[1][17])
	assert.Equal(t, "Cheapest, Fastest", records[1][18])
	assert.Equal(t, "Recommended", records[2][18])
}

func TestRenderXLSX(t *testing.T) {
	f, err := Render(sampleResults(), Options{Lang: "zh"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(f.Name, "quotes_全部_"))
	assert.True(t, strings.HasSuffix(f.Name, ".xlsx"))

	xl, err := excelize.OpenReader(bytes.NewReader(f.Data))
	require.NoError(t, err)
	defer xl.Close()

	rows, err := xl.GetRows("报价")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "序号", rows[0][0])
	assert.Equal(t, "渠道名称", rows[0][2])
	assert.Equal(t, "特惠普货", rows[1][2])
	assert.Equal(t, "7-10天", rows[1][5])
	assert.Equal(t, "最便宜, 最快", rows[1][18])
	assert.Equal(t, "推荐", rows[2][18])
}

func TestRenderUnsupportedFormat(t *testing.T) {
	_, err := Render(sampleResults(), Options{Format: "pdf"})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
