package common

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// ParseJSON 解析 JSON 字符串到結構體。
// 以 UseNumber 解碼，數字保留原樣交給呼叫端逐欄處理。
func ParseJSON(data string, v interface{}) error {
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()

	if err := dec.Decode(v); err != nil {
		return err
	}

	// 確保沒有多餘資料
	for {
		t, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		// 若讀到額外 token，視為錯誤
		if t != nil {
			return fmt.Errorf("unexpected extra JSON data")
		}
	}
}

var unquotedKeyPattern = regexp.MustCompile(`([{\[,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)

// QuoteJSONKeys 將未加雙引號的鍵補上雙引號
func QuoteJSONKeys(raw string) string {
	return unquotedKeyPattern.ReplaceAllString(raw, `$1"$2":`)
}

// StripCodeFence 去除模型回應外層的 ```json / ``` 包裹，
// 再保險擷取第一個 { 到最後一個 }
func StripCodeFence(raw string) string {
	txt := strings.TrimSpace(raw)
	txt = strings.TrimPrefix(txt, "```json")
	txt = strings.TrimPrefix(txt, "```")
	txt = strings.TrimSuffix(txt, "```")
	txt = strings.TrimSpace(txt)
	if start, end := strings.Index(txt, "{"), strings.LastIndex(txt, "}"); start != -1 && end != -1 && end > start {
		txt = txt[start : end+1]
	}
	return txt
}

// StringSliceToString 將字符串切片轉換為逗號分隔的字符串
func StringSliceToString(slice []string) string {
	if len(slice) == 0 {
		return ""
	}
	return strings.Join(slice, ", ")
}

// CoerceToString 將任意 JSON 值正規化成字串；
// nil 與缺值一律視為 "N/A"，模型輸出不可信，須逐欄處理
func CoerceToString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ItemNA
	case string:
		if s == "" {
			return ItemNA
		}
		return s
	case json.Number:
		return s.String()
	case bool:
		return fmt.Sprintf("%v", s)
	default:
		if b, err := json.Marshal(s); err == nil {
			return string(b)
		}
		return fmt.Sprintf("%v", s)
	}
}
