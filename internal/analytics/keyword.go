package analytics

import (
	"regexp"
	"sort"
	"strings"

	"tenderlens/models"
)

const topKeywordCount = 20

// IndustryDictionary maps each tracked industry to the terms that mark a
// project as belonging to it. Order is the display order for ties.
var IndustryDictionary = []struct {
	Industry string
	Terms    []string
}{
	{"医疗", []string{"医院", "医疗", "医药", "药品", "卫生", "诊疗", "医用", "器械"}},
	{"教育", []string{"学校", "教育", "教学", "学院", "大学", "中学", "小学", "培训"}},
	{"建筑", []string{"建筑", "施工", "工程", "装修", "改造", "建设", "修缮", "土建"}},
	{"信息技术", []string{"信息", "软件", "系统", "网络", "数据", "信息化", "平台", "智能"}},
	{"能源", []string{"能源", "电力", "光伏", "燃气", "供热", "石油", "新能源", "发电"}},
}

var dictionaryTerms = func() map[string]struct{} {
	terms := map[string]struct{}{}
	for _, entry := range IndustryDictionary {
		for _, t := range entry.Terms {
			terms[t] = struct{}{}
		}
	}
	return terms
}()

// Runs of two to four CJK ideographs, matched left to right without overlap.
var cjkRun = regexp.MustCompile(`[\x{4e00}-\x{9fa5}]{2,4}`)

// ComputeKeyword counts, per industry, the projects mentioning any of its
// terms, and tallies free-form CJK runs that are not dictionary terms.
// This is a coarse extractor, not word segmentation.
func ComputeKeyword(records []models.TenderRecord) KeywordView {
	view := EmptyKeyword()
	industryHits := make([]int, len(IndustryDictionary))
	freeForm := map[string]int{}

	for _, r := range records {
		text := r.Title + " " + r.Detail
		for i, entry := range IndustryDictionary {
			for _, term := range entry.Terms {
				if strings.Contains(text, term) {
					industryHits[i]++
					break
				}
			}
		}
		for _, m := range cjkRun.FindAllString(text, -1) {
			if _, known := dictionaryTerms[m]; known {
				continue
			}
			freeForm[m]++
		}
	}

	for i, entry := range IndustryDictionary {
		view.IndustryKeywords = append(view.IndustryKeywords, LabelCount{Label: entry.Industry, Count: industryHits[i]})
	}
	sort.SliceStable(view.IndustryKeywords, func(i, j int) bool {
		return view.IndustryKeywords[i].Count > view.IndustryKeywords[j].Count
	})

	for _, nv := range sortedCounts(freeForm) {
		if len(view.TopKeywords) == topKeywordCount {
			break
		}
		view.TopKeywords = append(view.TopKeywords, LabelCount{Label: nv.Name, Count: nv.Value})
	}
	return view
}
