package parser

import "testing"

func TestBuildColumnMapEnglish(t *testing.T) {
	headers := []string{"Date", "Website", "Country", "Requests", "Impressions", "Clicks", "Revenue"}
	m, missing := BuildColumnMap(headers)

	if len(missing) != 0 {
		t.Fatalf("unexpected missing fields: %v", missing)
	}
	for field, wantIdx := range map[Field]int{
		FieldDate: 0, FieldWebsite: 1, FieldCountry: 2,
		FieldRequests: 3, FieldImpressions: 4, FieldClicks: 5, FieldRevenue: 6,
	} {
		if idx, ok := m.Index(field); !ok || idx != wantIdx {
			t.Errorf("%s: got (%d, %v), want %d", field, idx, ok, wantIdx)
		}
	}
}

func TestBuildColumnMapChinese(t *testing.T) {
	headers := []string{"日期", "网站", "国家/地区", "广告资源格式", "Ad Exchange 请求总数", "Ad Exchange 收入"}
	m, missing := BuildColumnMap(headers)

	if len(missing) != 0 {
		t.Fatalf("unexpected missing fields: %v", missing)
	}
	for field, wantIdx := range map[Field]int{
		FieldDate: 0, FieldWebsite: 1, FieldCountry: 2,
		FieldAdFormat: 3, FieldRequests: 4, FieldRevenue: 5,
	} {
		if idx, ok := m.Index(field); !ok || idx != wantIdx {
			t.Errorf("%s: got (%d, %v), want %d", field, idx, ok, wantIdx)
		}
	}
}

func TestBuildColumnMapCaseAndWhitespace(t *testing.T) {
	m, missing := BuildColumnMap([]string{" date ", "WEBSITE"})
	if len(missing) != 0 {
		t.Fatalf("unexpected missing fields: %v", missing)
	}
	if !m.Has(FieldDate) || !m.Has(FieldWebsite) {
		t.Errorf("trim/lowercase matching failed: %v", m)
	}
}

func TestBuildColumnMapFirstMatchWins(t *testing.T) {
	// Two headers both map to revenue; the first assignment must survive.
	m, _ := BuildColumnMap([]string{"Date", "Website", "Revenue", "收入"})
	if idx, _ := m.Index(FieldRevenue); idx != 2 {
		t.Errorf("revenue mapped to %d, want first match at 2", idx)
	}
}

func TestBuildColumnMapMissingRequired(t *testing.T) {
	_, missing := BuildColumnMap([]string{"Country", "Revenue"})
	if len(missing) != 2 {
		t.Fatalf("got missing %v, want [date website]", missing)
	}
	found := map[Field]bool{}
	for _, f := range missing {
		found[f] = true
	}
	if !found[FieldDate] || !found[FieldWebsite] {
		t.Errorf("missing = %v, want date and website", missing)
	}
}

func TestBuildColumnMapUnknownHeadersIgnored(t *testing.T) {
	m, missing := BuildColumnMap([]string{"Date", "Website", "Totally Unknown Column"})
	if len(missing) != 0 {
		t.Fatalf("unexpected missing fields: %v", missing)
	}
	if len(m) != 2 {
		t.Errorf("unknown header should not map, got %v", m)
	}
}
