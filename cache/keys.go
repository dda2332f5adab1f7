// Package cache 实现按用户/上下文分 key 的排序缓存、曝光记录与会话加权。
package cache

import (
	"strconv"
	"strings"

	"github.com/rushteam/bookrank/core"
)

const anon = "anon"

func userPart(userID *int64) string {
	if userID == nil {
		return anon
	}
	return strconv.FormatInt(*userID, 10)
}

// BookKey 返回书籍推荐缓存 key：rec:book:user:<uid>
func BookKey(userID *int64) string {
	return "rec:book:user:" + userPart(userID)
}

// ReviewKey 返回书评推荐缓存 key：
//   - 有书籍上下文：rec:review:user:<uid>:book:<ctx>
//   - feed：rec:review:user:<uid>:feed
func ReviewKey(userID, contextID *int64) string {
	if contextID == nil {
		return "rec:review:user:" + userPart(userID) + ":feed"
	}
	return "rec:review:user:" + userPart(userID) + ":book:" + strconv.FormatInt(*contextID, 10)
}

// Key 按业务域返回缓存 key。
func Key(domain core.Domain, userID, contextID *int64) string {
	if domain == core.DomainReview {
		return ReviewKey(userID, contextID)
	}
	return BookKey(userID)
}

// Member 返回带业务域前缀的成员名，例如 "book:123"。
func Member(domain core.Domain, itemID int64) string {
	return string(domain) + ":" + strconv.FormatInt(itemID, 10)
}

// ParseMember 解析 "book:123" 形式的成员，也接受不带前缀的 "123"。
func ParseMember(member string) (int64, bool) {
	if i := strings.LastIndexByte(member, ':'); i >= 0 {
		member = member[i+1:]
	}
	id, err := strconv.ParseInt(member, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
