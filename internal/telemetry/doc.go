// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 VisionMCP 提供集中式的 TracerProvider 和 MeterProvider 配置，
// 并通过 Tracer() 为每次工具调用创建 span。
// 当遥测功能禁用时，使用 noop 实现，不连接任何外部服务。
package telemetry
