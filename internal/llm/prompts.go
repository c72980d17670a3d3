package llm

import "fmt"

// systemPrompt is shared by every enrichment request: an academic-paper
// analyst persona, answering in Simplified Chinese.
const systemPrompt = "你是一个学术论文分析助手。"

func tagPrompt(title, abstract string, maxTags int) string {
	return fmt.Sprintf(
		"请根据以下论文标题和摘要生成不超过%d个标签，简短且用中文，以逗号分隔输出。标题：%s\n摘要：%s",
		maxTags, title, abstract)
}

func summaryPrompt(title, abstract string) string {
	return fmt.Sprintf(
		"请将以下论文标题和摘要总结为中文，3-5句话，保持学术风格, 纯文本，仅输出总结内容。\n标题：%s\n摘要：%s",
		title, abstract)
}

func translationPrompt(abstract string) string {
	return fmt.Sprintf(
		"请将以下论文摘要完整翻译为中文，保持学术风格，纯文本，仅输出译文。\n摘要：%s",
		abstract)
}
