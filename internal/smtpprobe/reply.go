package smtpprobe

import (
	"strconv"
	"strings"
)

// Reply 一条完整的 SMTP 回复（可能包含多行）
type Reply struct {
	Code  int
	Lines []string
}

// Class 回复类别，即回复码的首位数字；无法解析时为 0
func (r *Reply) Class() int {
	return r.Code / 100
}

// Text 合并后的回复文本（不含回复码）
func (r *Reply) Text() string {
	parts := make([]string, 0, len(r.Lines))
	for _, line := range r.Lines {
		_, text, _ := splitLine(line)
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n")
}

// Raw 原始回复内容
func (r *Reply) Raw() string {
	return strings.Join(r.Lines, "\n")
}

// HasExtension 判断 EHLO 回复是否声明了某个扩展（如 STARTTLS）
func (r *Reply) HasExtension(name string) bool {
	name = strings.ToUpper(name)
	for i, line := range r.Lines {
		if i == 0 {
			// 首行是问候文本
			continue
		}
		_, text, _ := splitLine(line)
		fields := strings.Fields(strings.ToUpper(text))
		if len(fields) > 0 && fields[0] == name {
			return true
		}
	}
	return false
}

// splitLine 拆分回复行，返回回复码、文本以及是否为最后一行
//
// 不符合 "NNN-text" / "NNN text" 格式的行视为回复码 0 的最后一行。
func splitLine(line string) (int, string, bool) {
	if len(line) < 3 {
		return 0, line, true
	}
	code, err := strconv.Atoi(line[:3])
	if err != nil || code < 100 || code > 599 {
		return 0, line, true
	}
	if len(line) == 3 {
		return code, "", true
	}
	switch line[3] {
	case '-':
		return code, line[4:], false
	case ' ':
		return code, line[4:], true
	default:
		return code, line[3:], true
	}
}
