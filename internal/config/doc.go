// Package config 负责加载启动配置：JSON 文件承载非敏感参数，
// 密钥类配置一律从环境变量读取，避免落盘。
package config
