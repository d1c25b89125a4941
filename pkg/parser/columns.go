package parser

import (
	"log"
	"strings"
)

// Field is a canonical column identifier, independent of the export locale.
type Field string

// Canonical fields understood by the pipeline.
const (
	FieldDate                  Field = "date"
	FieldWebsite               Field = "website"
	FieldCountry               Field = "country"
	FieldAdFormat              Field = "adFormat"
	FieldAdUnit                Field = "adUnit"
	FieldAdvertiser            Field = "advertiser"
	FieldDomain                Field = "domain"
	FieldDevice                Field = "device"
	FieldBrowser               Field = "browser"
	FieldRequests              Field = "requests"
	FieldImpressions           Field = "impressions"
	FieldClicks                Field = "clicks"
	FieldCTR                   Field = "ctr"
	FieldECPM                  Field = "ecpm"
	FieldRevenue               Field = "revenue"
	FieldViewableImpressions   Field = "viewableImpressions"
	FieldViewabilityRate       Field = "viewabilityRate"
	FieldMeasurableImpressions Field = "measurableImpressions"
)

// RequiredFields are the only fields whose absence rejects the whole file.
var RequiredFields = []Field{FieldDate, FieldWebsite}

// synonymEntry binds one canonical field to its accepted header spellings.
type synonymEntry struct {
	field    Field
	synonyms []string
}

// synonymTable lists accepted header spellings per canonical field, across
// the two vocabularies the exports arrive in (Chinese Ad Manager exports and
// English ones). Matching is exact after trim + lowercase; the table order
// is fixed so mapping is reproducible.
var synonymTable = []synonymEntry{
	{FieldDate, []string{"日期", "Date"}},
	{FieldWebsite, []string{"网站", "Website"}},
	{FieldCountry, []string{"国家/地区", "国家", "Country"}},
	{FieldAdFormat, []string{"广告资源格式", "广告格式", "Ad Format"}},
	{FieldAdUnit, []string{"广告单元（所有级别）", "广告单元", "Ad Unit"}},
	{FieldAdvertiser, []string{"广告客户（已分类）", "广告客户", "Advertiser"}},
	{FieldDomain, []string{"广告客户网域", "域名", "Domain"}},
	{FieldDevice, []string{"设备", "Device"}},
	{FieldBrowser, []string{"浏览器", "Browser"}},
	{FieldRequests, []string{"Ad Exchange 请求总数", "请求数", "Requests"}},
	{FieldImpressions, []string{"Ad Exchange 展示次数", "展示数", "Impressions"}},
	{FieldClicks, []string{"Ad Exchange 点击次数", "点击数", "Clicks"}},
	{FieldCTR, []string{"Ad Exchange 点击率", "点击率", "CTR"}},
	{FieldECPM, []string{"Ad Exchange 平均 eCPM", "eCPM", "CPM"}},
	{FieldRevenue, []string{"Ad Exchange 收入", "收入", "Revenue"}},
	{FieldViewableImpressions, []string{"Ad Exchange Active View可见展示次数", "可见展示", "Viewable Impressions"}},
	{FieldViewabilityRate, []string{"Ad Exchange Active View可见展示次数百分比", "可见率", "Viewability Rate"}},
	{FieldMeasurableImpressions, []string{"Ad Exchange Active View可衡量展示次数", "可衡量展示", "Measurable Impressions"}},
}

// normalizedSynonyms is the lookup table derived from synonymTable, keyed by
// trimmed lowercase header spelling.
var normalizedSynonyms = func() map[string]Field {
	m := make(map[string]Field)
	for _, entry := range synonymTable {
		for _, syn := range entry.synonyms {
			m[strings.ToLower(syn)] = entry.field
		}
	}
	return m
}()

// ColumnMap maps canonical fields to zero-based column indices in a raw row.
type ColumnMap map[Field]int

// Index returns the column index for a field and whether it was mapped.
func (m ColumnMap) Index(f Field) (int, bool) {
	idx, ok := m[f]
	return idx, ok
}

// Has reports whether the field was found in the header.
func (m ColumnMap) Has(f Field) bool {
	_, ok := m[f]
	return ok
}

// BuildColumnMap maps a header row onto canonical fields. The first header
// cell that exactly matches a synonym (case-insensitive, trimmed) wins the
// canonical slot; later matches for an already-assigned field are logged as
// conflicts and never overwrite. Returns the map and the required fields
// that were not found.
func BuildColumnMap(headers []string) (ColumnMap, []Field) {
	columnMap := make(ColumnMap)

	for index, header := range headers {
		normalized := strings.ToLower(strings.TrimSpace(header))
		field, ok := normalizedSynonyms[normalized]
		if !ok {
			continue
		}
		if existing, assigned := columnMap[field]; assigned {
			log.Printf("[parser] header %q at index %d conflicts with %s already mapped at index %d",
				header, index, field, existing)
			continue
		}
		columnMap[field] = index
	}

	var missing []Field
	for _, required := range RequiredFields {
		if !columnMap.Has(required) {
			missing = append(missing, required)
		}
	}

	return columnMap, missing
}
