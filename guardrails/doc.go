// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package guardrails 提供工具调用参数的安全校验与扫描。

# 组件

  - InjectionDetector — 固定有序正则模式的提示注入检测，
    置信度 = min(命中数 / 模式总数, 1)，base64 子串解码后以 2 倍权重递归一层
  - PIIDetector       — ssn / email / phone / credit_card 检测，只标记不脱敏
  - URLValidator      — 协议白名单、主机黑名单（含子域）、私有地址字面量、端口黑名单
  - PathValidator     — 路径穿越与基础目录沙箱
  - Sanitizer         — 去除脚本与 HTML 标签并截断
  - LengthValidator   — 文本长度上限
  - ValidatorChain    — 按优先级或并行组合多个 Validator

SecurityConfig 在启动时构造一次，之后只读。
*/
package guardrails
