package dnsbl

import (
	"net"
	"strings"

	"github.com/c-robinson/iplib"
)

// ReverseIP 构造 DNSBL 查询使用的反向名称
//
// IPv4 按点分八位组倒序；IPv6 先完整展开为 8 组 4 位十六进制，
// 再把每个半字节倒序并用点连接。无法解析的输入原样返回。
func ReverseIP(address string) string {
	ip := net.ParseIP(address)
	if ip == nil {
		return address
	}

	if !strings.Contains(address, ":") {
		octets := strings.Split(ip.To4().String(), ".")
		for i, j := 0, len(octets)-1; i < j; i, j = i+1, j-1 {
			octets[i], octets[j] = octets[j], octets[i]
		}
		return strings.Join(octets, ".")
	}

	nibbles := strings.ReplaceAll(ExpandIPv6(address), ":", "")
	out := make([]string, 0, len(nibbles))
	for i := len(nibbles) - 1; i >= 0; i-- {
		out = append(out, string(nibbles[i]))
	}
	return strings.Join(out, ".")
}

// ExpandIPv6 将 IPv6 地址展开为 8 组零填充的 4 位十六进制
//
// 内嵌的 IPv4 后缀（如 ::ffff:192.0.2.1）会转换为两组十六进制。
// 非 IPv6 输入返回空字符串。
func ExpandIPv6(address string) string {
	if !strings.Contains(address, ":") {
		return ""
	}
	ip := net.ParseIP(address)
	if ip == nil {
		return ""
	}
	return iplib.ExpandIP6(ip.To16())
}
