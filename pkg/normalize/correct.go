package normalize

import (
	"strings"

	"github.com/adlens/adlens/internal/model"
)

// adFormatKeywords are substrings that mark a value as an ad-format name.
// The list covers the two vocabularies the exports arrive in.
var adFormatKeywords = []string{
	"广告", "Ad", "ad", "插页", "横幅", "视频", "原生", "激励",
	"Banner", "Interstitial", "Rewarded",
}

// knownCountries are country names that can only belong in the country
// column. Used to detect ad-format cells holding a country.
var knownCountries = map[string]struct{}{
	"中国":   {},
	"美国":   {},
	"日本":   {},
	"韩国":   {},
	"英国":   {},
	"德国":   {},
	"法国":   {},
	"意大利":  {},
	"西班牙":  {},
	"巴西":   {},
	"印度":   {},
	"俄罗斯":  {},
	"加拿大":  {},
	"澳大利亚": {},
}

// CorrectSwappedColumns repairs records whose country and ad-format values
// arrived transposed, a known defect of hand-edited exports. Each direction
// only fires when the other column still holds its default, so legitimate
// values are never overwritten.
func CorrectSwappedColumns(rec *model.Record) {
	if looksLikeAdFormat(rec.Country) && rec.AdFormat == model.Unknown {
		rec.AdFormat = rec.Country
		rec.Country = model.Unknown
	}

	if _, known := knownCountries[rec.AdFormat]; known && rec.Country == model.Unknown {
		rec.Country = rec.AdFormat
		rec.AdFormat = model.Unknown
	}
}

// looksLikeAdFormat reports whether a value contains any ad-format keyword.
func looksLikeAdFormat(value string) bool {
	for _, kw := range adFormatKeywords {
		if strings.Contains(value, kw) {
			return true
		}
	}
	return false
}
