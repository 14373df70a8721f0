// Package tlsutil 提供集中式 TLS 配置与出站 HTTP 客户端，
// 为 Gemini、Supabase 与图片抓取提供安全加固的 TLS 设置（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
