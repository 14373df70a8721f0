// 版权所有 2024 AgentFlow Authors. 保留所有权利。

/*
Package dispatch 实现工具调用的请求管线。

每个请求依次经过：

	RECEIVED → RATE_CHECKED → VALIDATED → SCANNED → DELEGATED → AUDITED → RESPONDED

任一阶段失败都会直接跳到 AUDITED 记录失败，再返回错误响应，不会进入 DELEGATED。
每个请求恰好写入一条审计记录。工具执行中的 panic 会被恢复为 InternalError。

Dispatcher 的全部状态（限流器、审计日志、协作方）都通过 Deps 注入，
可以在同一进程中创建多个互不影响的实例。
*/
package dispatch
