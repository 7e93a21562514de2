package typo

import (
	"strings"

	"github.com/hbollon/go-edlib"
)

// MaxTypoDistance 判定为拼写错误的最大编辑距离
const MaxTypoDistance = 2

// Detector 域名拼写错误检测器
//
// 将候选域名与参照列表（常见免费邮箱服务商）逐一比较编辑距离，
// 最小距离在 [1, MaxTypoDistance] 之间时认为是拼写错误；距离 0 为完全匹配。
type Detector struct {
	references []string
}

// NewDetector 创建检测器
func NewDetector(references []string) *Detector {
	refs := make([]string, 0, len(references))
	for _, r := range references {
		if r = strings.ToLower(strings.TrimSpace(r)); r != "" {
			refs = append(refs, r)
		}
	}
	return &Detector{references: refs}
}

// Distance 返回候选域名到参照列表的最小编辑距离
//
// 参照列表为空时返回 -1。
func (d *Detector) Distance(domain string) int {
	if len(d.references) == 0 {
		return -1
	}
	domain = strings.ToLower(domain)
	best := -1
	for _, ref := range d.references {
		dist := levenshtein(domain, ref)
		if best < 0 || dist < best {
			best = dist
		}
		if best == 0 {
			break
		}
	}
	return best
}

// Check 返回最小编辑距离以及是否判定为拼写错误
func (d *Detector) Check(domain string) (int, bool) {
	dist := d.Distance(domain)
	return dist, dist >= 1 && dist <= MaxTypoDistance
}

// IsTypo 判断域名是否疑似拼写错误
func (d *Detector) IsTypo(domain string) bool {
	_, typo := d.Check(domain)
	return typo
}

// Suggest 返回与候选域名最接近的参照域名，仅在判定为拼写错误时有值
func (d *Detector) Suggest(domain string) string {
	if !d.IsTypo(domain) {
		return ""
	}
	match, err := edlib.FuzzySearch(strings.ToLower(domain), d.references, edlib.Levenshtein)
	if err != nil {
		return ""
	}
	return match
}

// levenshtein 迭代式动态规划计算编辑距离
//
// 较短的字符串放在前面，先裁掉公共后缀再裁掉公共前缀，
// 只保留一行 DP 数组。
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}

	first, second := []rune(a), []rune(b)
	if len(first) > len(second) {
		first, second = second, first
	}

	firstLen, secondLen := len(first), len(second)

	// 公共后缀
	for firstLen > 0 && first[firstLen-1] == second[secondLen-1] {
		firstLen--
		secondLen--
	}

	// 公共前缀
	start := 0
	for start < firstLen && first[start] == second[start] {
		start++
	}

	firstLen -= start
	secondLen -= start
	if firstLen == 0 {
		return secondLen
	}

	first = first[start : start+firstLen]
	second = second[start : start+secondLen]

	row := make([]int, firstLen)
	for i := range row {
		row[i] = i + 1
	}

	result := 0
	for j := 0; j < secondLen; j++ {
		ch := second[j]
		diag := j
		result = j + 1

		for i := 0; i < firstLen; i++ {
			cost := diag
			if ch != first[i] {
				cost++
			}
			diag = row[i]

			// 取 上方+1、左方+1、对角线代价 三者中的最小值
			switch {
			case diag > result:
				if cost > result {
					result++
				} else {
					result = cost
				}
			default:
				if cost > diag {
					result = diag + 1
				} else {
					result = cost
				}
			}
			row[i] = result
		}
	}

	return result
}
