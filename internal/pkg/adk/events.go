package adk

import "strings"

// NoResponseText 事件中没有任何模型文本时返回给用户的提示
const NoResponseText = "I apologize, but I encountered an issue processing your request. Please try again."

// Event agent server 返回的事件，结构不固定
type Event map[string]any

// ModelTexts 提取事件中的模型文本片段
//
// 依次尝试：
//   - content.role == "model" 时的 parts
//   - 嵌套的 event.content（role == "model"）
//   - 顶层 text 字段
func (e Event) ModelTexts() []string {
	if content, ok := e["content"].(map[string]any); ok && content["role"] == "model" {
		return partTexts(content)
	}

	if nested, ok := e["event"].(map[string]any); ok {
		if content, ok := nested["content"].(map[string]any); ok && content["role"] == "model" {
			return partTexts(content)
		}
		return nil
	}

	if text, ok := e["text"].(string); ok {
		return []string{text}
	}
	return nil
}

func partTexts(content map[string]any) []string {
	parts, _ := content["parts"].([]any)
	texts := make([]string, 0, len(parts))
	for _, part := range parts {
		switch p := part.(type) {
		case map[string]any:
			if text, ok := p["text"].(string); ok {
				texts = append(texts, text)
			}
		case string:
			texts = append(texts, p)
		}
	}
	return texts
}

// ExtractText 拼接所有事件中的模型文本，首尾去空白；没有文本时返回空串
func ExtractText(events []Event) string {
	var b strings.Builder
	for _, event := range events {
		for _, text := range event.ModelTexts() {
			b.WriteString(text)
		}
	}
	return strings.TrimSpace(b.String())
}

// ResponseText 同 ExtractText，为空时返回 NoResponseText
func ResponseText(events []Event) string {
	if text := ExtractText(events); text != "" {
		return text
	}
	return NoResponseText
}
