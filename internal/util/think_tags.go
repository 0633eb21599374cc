package util

import (
	"regexp"
	"strings"
)

// Reasoning models wrap their scratchpad in <think> (or <思考>) tags
var (
	thinkTagRegex        = regexp.MustCompile(`(?i)<think(?:ing)?>([\s\S]*?)</think(?:ing)?>`)
	chineseThinkTagRegex = regexp.MustCompile(`<思考>([\s\S]*?)</思考>`)
)

// ContainsThinkTags checks if the response contains think/reasoning tags
func ContainsThinkTags(response string) bool {
	return thinkTagRegex.MatchString(response) || chineseThinkTagRegex.MatchString(response)
}

// StripThinkTags removes reasoning blocks, leaving only the final answer
func StripThinkTags(response string) string {
	if !ContainsThinkTags(response) {
		return response
	}
	result := thinkTagRegex.ReplaceAllString(response, "")
	result = chineseThinkTagRegex.ReplaceAllString(result, "")
	return strings.TrimSpace(result)
}
