// Package config 提供 VisionMCP 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → VISIONMCP_ 前缀环境变量 的顺序叠加，
// 并识别 GEMINI_API_KEY、SUPABASE_URL、SUPABASE_SERVICE_ROLE_KEY
// 等通用密钥变量。安全配置通过 Config.SecurityConfig 冻结为只读值。
package config
