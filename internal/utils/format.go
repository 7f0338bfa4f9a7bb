package utils

import (
	"fmt"
	"strconv"
)

// FormatAmount 将大额数值缩写为易读形式：999 -> "999"，1500 -> "1.5K"，2300000 -> "2.3M"
func FormatAmount(n int64) string {
	switch {
	case n < 1000:
		return strconv.FormatInt(n, 10)
	case n < 1000000:
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	default:
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
}
