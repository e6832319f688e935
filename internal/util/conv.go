package util

import (
	"math"
	"strconv"
)

// ParseID 将路径参数转换为无符号整数 ID，非法或为 0 时返回 false
func ParseID(s string) (uint, bool) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// Round2 四舍五入保留两位小数
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Round1 四舍五入保留一位小数
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// RoundDrift 保留 9 位小数，只消除浮点累加误差，不改变有效精度
func RoundDrift(v float64) float64 {
	return math.Round(v*1e9) / 1e9
}
