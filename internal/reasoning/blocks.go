package reasoning

import (
	"regexp"
	"strings"
)

var (
	finalAnswerTag   = regexp.MustCompile(`(?s)<final_answer>(.*?)</final_answer>`)
	askTag           = regexp.MustCompile(`(?s)<ask>(.*?)</ask>`)
	monitorTag       = regexp.MustCompile(`(?s)<monitor>(.*?)</monitor>`)
	finalAnswerFence = regexp.MustCompile("(?s)```final_answer\\s*(.*?)```")
	toolCodeTag      = regexp.MustCompile(`(?s)<tool_code>(.*?)</tool_code>`)
	pythonTag        = regexp.MustCompile(`(?s)<python>(.*?)</python>`)
	pythonFence      = regexp.MustCompile("(?s)```python\\s*(.*?)```")
)

// finalAnswer extracts a terminal answer from the model's assistant text,
// checking every recognized spelling in order: the three tag forms, then
// the older fenced variant. Returns ("", false) if none match.
func finalAnswer(text string) (string, bool) {
	for _, re := range []*regexp.Regexp{finalAnswerTag, askTag, monitorTag, finalAnswerFence} {
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1]), true
		}
	}
	return "", false
}

// toolCodeBlocks extracts every <tool_code>{"name": "..."}</tool_code>
// block's raw JSON body, in order.
func toolCodeBlocks(text string) []string {
	matches := toolCodeTag.FindAllStringSubmatch(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}

// pythonBlocks extracts every <python>...</python> or fenced ```python```
// block's source, in order, tag form first.
func pythonBlocks(text string) []string {
	var out []string
	for _, m := range pythonTag.FindAllStringSubmatch(text, -1) {
		out = append(out, strings.TrimSpace(m[1]))
	}
	for _, m := range pythonFence.FindAllStringSubmatch(text, -1) {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}
