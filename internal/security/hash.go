// Package security 提供凭证哈希工具。
//
// 访问令牌和恢复联系方式只以哈希形式落库。这里需要确定性哈希
// 以支持等值查询（按令牌哈希查地址、按联系方式哈希限流），
// 因此使用 SHA-256 而非加盐的口令哈希。
package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashSecret 计算字符串的 SHA-256 十六进制摘要。
func HashSecret(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// HashEqual 常数时间比较两个哈希值。
func HashEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
