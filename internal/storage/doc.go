// 包 storage 提供图像对象存储上传。SupabaseUploader 使用 service role 密钥调用
// Supabase Storage REST 接口，桶名与对象路径在发出请求前校验。
package storage
