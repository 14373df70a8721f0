/*
包 audit 记录每一次工具调用的审计信息。

内存中保存一个容量为 1000 的有界 FIFO 环形缓冲区（Ring），溢出时淘汰最旧记录。
Log 在 Ring 之上可挂接持久化后端：

  - FileBackend：按天滚动的 JSONL 文件
  - SQLBackend：GORM audit_logs 表（postgres、mysql、sqlite）
  - MongoBackend：MongoDB 集合

后端写入是异步的，失败只通过 zap 记录日志，不会影响调用方。
*/
package audit
