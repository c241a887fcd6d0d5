// Package migrations 内嵌数据库迁移脚本。
package migrations

import "embed"

// Files 按文件名前缀的版本号顺序执行。
//
//go:embed *.sql
var Files embed.FS
