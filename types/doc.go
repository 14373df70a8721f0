// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 visionmcp 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 guardrails、dispatch、mcp、
api 等上层模块提供统一的类型契约。

# 核心类型

  - Error / ErrorCode   — 结构化错误体系（配置、校验、限流、协作方、内部）
  - AnalysisType        — lifestyle / product
  - AnalysisResult      — analyze_image 返回结构
  - SecurityScanResult  — 单次请求安全扫描结果
  - IntegrityInfo       — SHA-256 校验和与 MIME 信息
  - UploadResult        — upload_to_supabase 返回结构

# 主要能力

  - Context 传播：WithRequestID / WithIdentifier / WithTraceID
  - 错误工具链：AsError / GetErrorCode / IsErrorCode
  - 常用错误构造：NewValidationError / NewRateLimitError / NewCollaboratorError / NewTimeoutError
*/
package types
