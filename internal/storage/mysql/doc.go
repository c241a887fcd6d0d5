// Package mysql 提供钱包与暂存记录的 MySQL 持久化实现，
// 启动时自动执行嵌入的 SQL 迁移。
package mysql
