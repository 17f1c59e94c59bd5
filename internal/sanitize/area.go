package sanitize

import "strings"

// UnknownArea labels records without a usable area.
const UnknownArea = "未知"

// AreaAliases maps abbreviated province names to their canonical form. It is a
// hand-maintained heuristic, not authoritative geocoding.
var AreaAliases = map[string]string{
	"内蒙":  "内蒙古自治区",
	"内蒙古": "内蒙古自治区",
	"新疆":  "新疆维吾尔自治区",
	"广西":  "广西壮族自治区",
	"宁夏":  "宁夏回族自治区",
	"西藏":  "西藏自治区",
	"香港":  "香港特别行政区",
	"澳门":  "澳门特别行政区",
	"北京":  "北京市",
	"上海":  "上海市",
	"天津":  "天津市",
	"重庆":  "重庆市",
}

var canonicalSuffixes = []string{"省", "市", "自治区", "特别行政区"}

// StandardizeAreaName resolves aliases, passes through names that already carry
// an administrative suffix and otherwise guesses a province by appending 省.
func StandardizeAreaName(raw string) string {
	name := strings.TrimSpace(raw)
	if name == "" {
		return UnknownArea
	}
	if canonical, ok := AreaAliases[name]; ok {
		return canonical
	}
	for _, suffix := range canonicalSuffixes {
		if strings.HasSuffix(name, suffix) {
			return name
		}
	}
	return name + "省"
}
