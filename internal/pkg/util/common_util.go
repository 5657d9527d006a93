package util

import (
	"strconv"
)

// ParseID 解析路径或查询参数中的 ID，0 视为非法
func ParseID(raw string) (uint64, bool) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}
