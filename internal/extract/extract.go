// Package extract 从验证类邮件中提取一次性验证码与验证链接。
//
// 提取是纯启发式：先用关键词闸门排除普通邮件，再按固定优先级
// 依次尝试一组正则模式，首个命中者胜出。模式与排除条件都以
// 数据表形式给出，便于单独测试与调整。
package extract

import (
	"html"
	"regexp"
	"strconv"
	"strings"
)

// Result 提取结果。码与链接可以都有、只有其一或都没有；
// 即使通过了分类闸门，两者皆空也不是错误。
type Result struct {
	Code *string
	Link *string
}

// classifierKeywords 分类闸门关键词。主题与正文拼接后小写匹配，
// 一个都不含的邮件直接判定为非验证邮件，避免普通邮件误报。
var classifierKeywords = []string{
	"verification",
	"verify",
	"otp",
	"one-time",
	"one time",
	"passcode",
	"pass code",
	"2fa",
	"two-factor",
	"two factor",
	"magic link",
	"sign-in",
	"sign in",
	"login code",
	"login link",
	"security code",
	"confirmation code",
	"confirm your",
	"activate",
	"activation",
	"authenticate",
	"authentication",
}

// codePattern 一条验证码提取规则。
type codePattern struct {
	name string
	re   *regexp.Regexp
}

// codePatterns 按优先级排列的验证码模式表。顺序是有意义的：
// 紧邻关键词的显式验证码优先于裸数字串。
var codePatterns = []codePattern{
	{
		// "code/pin/otp/password/passcode" 后跟 4-8 位数字
		name: "keyword-digits",
		re:   regexp.MustCompile(`(?i)(?:code|pin|otp|password|passcode)(?:\s+is)?\s*[:\-]?\s*(\d{4,8})\b`),
	},
	{
		// "enter/use/type" 后跟 4-8 位数字
		name: "action-digits",
		re:   regexp.MustCompile(`(?i)(?:enter|use|type)\b[^0-9]{0,20}(\d{4,8})\b`),
	},
	{
		name: "bare-six",
		re:   regexp.MustCompile(`\b(\d{6})\b`),
	},
	{
		name: "bare-four",
		re:   regexp.MustCompile(`\b(\d{4})\b`),
	},
	{
		name: "bare-eight",
		re:   regexp.MustCompile(`\b(\d{8})\b`),
	},
	{
		// 关键词附近的 6-8 位字母数字混合码
		name: "keyword-alphanumeric",
		re:   regexp.MustCompile(`(?i)(?:code|otp|passcode)[^0-9A-Za-z]{0,10}([A-Za-z0-9]{6,8})\b`),
	},
}

// placeholderCodes 已知的占位值，永远不作为验证码返回。
var placeholderCodes = map[string]struct{}{
	"0000":     {},
	"1234":     {},
	"123456":   {},
	"12345678": {},
}

// linkKeywords URL 路径或查询串中出现即视为验证链接的词。
var linkKeywords = []string{
	"verify", "confirm", "activate", "auth", "login", "magic", "token", "code",
}

// linkExclusions 含有这些片段的 URL 不是验证链接（退订、跟踪像素等）。
var linkExclusions = []string{
	"unsubscribe", "tracking", "pixel",
	".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico",
}

var (
	urlRegex        = regexp.MustCompile(`https?://[^\s"'<>\)\]]+`)
	tokenParamRegex = regexp.MustCompile(`[?&](?:token|code|key|otp)=[^&\s]+`)
	htmlTagRegex    = regexp.MustCompile(`<[^>]*>`)
	softWrapRegex   = regexp.MustCompile(`=\r?\n`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// Extract 对一封邮件执行验证内容提取。
// 三个入参任意为空均可；分类闸门不通过时直接返回空结果。
func Extract(subject, text, htmlBody string) Result {
	if !isVerificationRelated(subject, text, htmlBody) {
		return Result{}
	}

	result := Result{}

	// 验证码：正文优先于 HTML，主题垫底，首个非空命中胜出
	for _, source := range []string{text, htmlBody, subject} {
		if source == "" {
			continue
		}
		if code := extractCode(normalizeText(source)); code != "" {
			result.Code = &code
			break
		}
	}

	// 链接：HTML 优先于正文
	for _, source := range []string{htmlBody, text} {
		if source == "" {
			continue
		}
		if link := extractLink(normalizeLinks(source)); link != "" {
			result.Link = &link
			break
		}
	}

	return result
}

// isVerificationRelated 分类闸门：主题与正文拼接小写后做关键词匹配。
func isVerificationRelated(subject, text, htmlBody string) bool {
	haystack := strings.ToLower(subject + " " + text + " " + htmlBody)
	for _, keyword := range classifierKeywords {
		if strings.Contains(haystack, keyword) {
			return true
		}
	}
	return false
}

// extractCode 对归一化文本按模式表顺序提取验证码。
func extractCode(text string) string {
	for _, pattern := range codePatterns {
		for _, match := range pattern.re.FindAllStringSubmatch(text, -1) {
			candidate := match[1]
			if rejectCode(candidate) {
				continue
			}
			return candidate
		}
	}
	return ""
}

// rejectCode 过滤疑似年份与占位值的候选。
func rejectCode(candidate string) bool {
	if _, ok := placeholderCodes[candidate]; ok {
		return true
	}
	// 4 位数字落在 1900-2100 区间的大概率是年份
	if len(candidate) == 4 {
		if year, err := strconv.Atoi(candidate); err == nil && year >= 1900 && year <= 2100 {
			return true
		}
	}
	return false
}

// extractLink 扫描文本中的 URL，返回第一个通过校验的验证链接。
func extractLink(text string) string {
	for _, candidate := range urlRegex.FindAllString(text, -1) {
		candidate = strings.TrimRight(candidate, ".,;:!")
		lower := strings.ToLower(candidate)

		if excludedLink(lower) {
			continue
		}
		if verificationLink(lower) {
			return candidate
		}
	}
	return ""
}

func excludedLink(lower string) bool {
	for _, fragment := range linkExclusions {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

func verificationLink(lower string) bool {
	// 查询串携带 token/code/key 参数的直接放行
	if tokenParamRegex.MatchString(lower) {
		return true
	}

	// 只检查路径与查询部分，不把域名里的词算进来
	rest := lower
	if idx := strings.Index(lower, "://"); idx >= 0 {
		rest = lower[idx+3:]
	}
	if idx := strings.IndexAny(rest, "/?"); idx >= 0 {
		rest = rest[idx:]
	} else {
		return false
	}

	for _, keyword := range linkKeywords {
		if strings.Contains(rest, keyword) {
			return true
		}
	}
	return false
}

// normalizeText 归一化验证码匹配源：
// 还原软换行与 quoted-printable 续行，剥掉 HTML 标签，
// 解码实体引用，最后压缩空白。
func normalizeText(source string) string {
	out := softWrapRegex.ReplaceAllString(source, "")
	out = htmlTagRegex.ReplaceAllString(out, " ")
	out = html.UnescapeString(out)
	out = whitespaceRegex.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// normalizeLinks 归一化链接匹配源：仅当正文带有 quoted-printable
// 痕迹（软换行或 =3D）时才还原编码，普通 URL 中形如 "=ab" 的
// 查询参数不能被误当作十六进制序列解码。保留标签以便取出 href 值。
func normalizeLinks(source string) string {
	if softWrapRegex.MatchString(source) || strings.Contains(source, "=3D") {
		source = softWrapRegex.ReplaceAllString(source, "")
		source = strings.ReplaceAll(source, "=3D", "=")
	}
	return html.UnescapeString(source)
}
