// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集，覆盖 HTTP、工具调用、
安全扫描、外部协作方与数据库连接。

# 核心类型

  - Collector：指标收集器。所有指标注册在构造时注入的
    prometheus.Registerer 上，测试可以使用独立的 Registry。

# 主要指标

  - http_requests_total / http_request_duration_seconds
  - tool_calls_total{tool,status} / tool_call_duration_seconds{tool}
  - rate_limited_total{tool}
  - security_detections_total{kind}
  - upstream_requests_total{service,status}
  - db_connections_open / db_connections_idle
*/
package metrics
