package mailparse

import (
	"encoding/base64"
	"io"
	"mime"
	"mime/quotedprintable"
	"net/mail"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"
)

// ParsedMessage 表示解析后的邮件内容。
type ParsedMessage struct {
	From       string
	FromName   string
	To         string
	Subject    string
	Text       string
	HTML       string
	RawHeaders string
}

// Parse 解析原始邮件，提取结构化字段。
//
// 这是"尽力而为"的解析：字段缺失或格式异常只会降级为空值，
// 永远不会因解析歧义丢弃一封邮件，所以没有错误返回值。
// declaredContentType 为空时回退到头部声明的 Content-Type。
func Parse(raw []byte, declaredContentType string) *ParsedMessage {
	headerBlock, body := splitHeadersBody(string(raw))

	headers := parseHeaderBlock(headerBlock)
	parsed := &ParsedMessage{
		Subject:    decodeHeader(headers.get("Subject")),
		To:         headers.get("To"),
		RawHeaders: headerBlock,
	}
	parsed.From, parsed.FromName = parseFromHeader(headers.get("From"))

	contentType := declaredContentType
	if contentType == "" {
		contentType = headers.get("Content-Type")
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		// 没有 Content-Type 或解析失败，当作纯文本处理
		parsed.Text = decodeBody(body, headers.get("Content-Transfer-Encoding"), "")
		return parsed
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			// 缺 boundary 的 multipart 降级为纯文本
			parsed.Text = body
			return parsed
		}
		parseMultipart(body, boundary, parsed)
		return parsed
	}

	decoded := decodeBody(body, headers.get("Content-Transfer-Encoding"), params["charset"])
	if strings.HasPrefix(mediaType, "text/html") {
		parsed.HTML = decoded
	} else {
		parsed.Text = decoded
	}
	return parsed
}

// headerMap 保存大小写无关的邮件头。
type headerMap map[string]string

func (h headerMap) get(name string) string {
	return h[strings.ToLower(name)]
}

// splitHeadersBody 在第一个空行处切分头部与正文（兼容 LF 与 CRLF）。
func splitHeadersBody(raw string) (string, string) {
	if idx := strings.Index(raw, "\r\n\r\n"); idx >= 0 {
		return raw[:idx], raw[idx+4:]
	}
	if idx := strings.Index(raw, "\n\n"); idx >= 0 {
		return raw[:idx], raw[idx+2:]
	}
	// 没有空行分隔，整体当作头部
	return raw, ""
}

// parseHeaderBlock 逐行解析头部，合并折行续写。
func parseHeaderBlock(block string) headerMap {
	headers := make(headerMap)
	var lastKey string

	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}

		// 续行（以空白开头）拼接到上一个头部
		if line[0] == ' ' || line[0] == '\t' {
			if lastKey != "" {
				headers[lastKey] += " " + strings.TrimSpace(line)
			}
			continue
		}

		idx := strings.Index(line, ":")
		if idx <= 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(line[:idx]))
		headers[key] = strings.TrimSpace(line[idx+1:])
		lastKey = key
	}
	return headers
}

// parseFromHeader 从 "Name <addr>" 形式中分离地址与显示名。
// 没有显示名不是错误，只是显示名为空。
func parseFromHeader(value string) (addr string, name string) {
	if value == "" {
		return "", ""
	}

	decoded := decodeHeader(value)
	if parsed, err := mail.ParseAddress(decoded); err == nil {
		return parsed.Address, parsed.Name
	}

	// 标准库解不开时手工剥一层尖括号
	if open := strings.Index(decoded, "<"); open >= 0 {
		if end := strings.Index(decoded[open:], ">"); end > 0 {
			addr = strings.TrimSpace(decoded[open+1 : open+end])
			name = strings.Trim(strings.TrimSpace(decoded[:open]), `"`)
			return addr, name
		}
	}
	return strings.TrimSpace(decoded), ""
}

// parseMultipart 按声明的 boundary 切分各部分，
// 提取第一个 text/plain 与第一个 text/html 部分的正文。
func parseMultipart(body, boundary string, parsed *ParsedMessage) {
	for _, part := range strings.Split(body, "--"+boundary) {
		part = strings.TrimLeft(part, "\r\n")
		if part == "" || strings.HasPrefix(part, "--") {
			continue
		}

		partHeaderBlock, partBody := splitHeadersBody(part)
		partHeaders := parseHeaderBlock(partHeaderBlock)

		contentType := partHeaders.get("Content-Type")
		mediaType, params, err := mime.ParseMediaType(contentType)
		if err != nil {
			continue
		}

		// 嵌套 multipart 递归处理
		if strings.HasPrefix(mediaType, "multipart/") {
			if nested := params["boundary"]; nested != "" {
				parseMultipart(partBody, nested, parsed)
			}
			continue
		}

		decoded := decodeBody(partBody, partHeaders.get("Content-Transfer-Encoding"), params["charset"])
		switch {
		case strings.HasPrefix(mediaType, "text/html"):
			if parsed.HTML == "" {
				parsed.HTML = decoded
			}
		case strings.HasPrefix(mediaType, "text/plain"):
			if parsed.Text == "" {
				parsed.Text = decoded
			}
		}
	}
}

// decodeBody 根据传输编码与字符集解码正文，失败时原样返回。
func decodeBody(body, transferEncoding, charset string) string {
	transferEncoding = strings.ToLower(strings.TrimSpace(transferEncoding))

	var decoded io.Reader = strings.NewReader(body)
	switch transferEncoding {
	case "base64":
		decoded = base64.NewDecoder(base64.StdEncoding, strings.NewReader(strings.TrimSpace(body)))
	case "quoted-printable":
		decoded = quotedprintable.NewReader(strings.NewReader(body))
	}

	out, err := io.ReadAll(decoded)
	if err != nil {
		return body
	}

	// 字符集转换
	charset = strings.ToLower(strings.TrimSpace(charset))
	if charset != "" && charset != "utf-8" && charset != "us-ascii" {
		if enc := getCharsetEncoding(charset); enc != nil {
			converted, _, err := transform.Bytes(enc.NewDecoder(), out)
			if err == nil {
				out = converted
			}
		}
	}
	return string(out)
}

// decodeHeader 解码 MIME encoded-word 形式的头部值。
func decodeHeader(value string) string {
	if value == "" {
		return value
	}
	decoder := new(mime.WordDecoder)
	decoded, err := decoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

// getCharsetEncoding 根据字符集名称返回编码器
func getCharsetEncoding(charset string) encoding.Encoding {
	switch charset {
	case "gb2312", "gbk", "gb18030":
		return simplifiedchinese.GBK
	case "big5":
		return traditionalchinese.Big5
	case "iso-2022-jp", "shift_jis", "euc-jp":
		return japanese.ShiftJIS
	case "euc-kr", "ks_c_5601-1987":
		return korean.EUCKR
	default:
		return nil
	}
}
