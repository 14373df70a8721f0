/*
包 vision 封装多模态模型调用。

GeminiAnalyzer 通过 generateContent REST 接口提交图像（inlineData）与
按分析类型（lifestyle、product）选择的固定提示词，要求模型输出 JSON，
解析为 metadata 与 confidence。调用失败包装为 CollaboratorError("gemini")，
超时包装为 TimeoutError，不做重试。
*/
package vision
