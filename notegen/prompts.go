package notegen

import (
	"fmt"
	"strings"

	"smartnotes/core"
)

// truncate bounds text to maxChars bytes. Zero or negative maxChars
// means unbounded.
func truncate(text string, maxChars int) string {
	if maxChars > 0 && len(text) > maxChars {
		return text[:maxChars]
	}
	return text
}

// buildTopicInfoPrompt asks for every passage relevant to one topic.
func buildTopicInfoPrompt(documentText, topicName string, maxChars int) string {
	return fmt.Sprintf(`Extract all information related to the topic "%s" from the following document content.
Focus only on relevant sentences, paragraphs, and details that directly relate to this topic.
Organize the information in a clear and coherent manner.

Document content:
%s`, topicName, truncate(documentText, maxChars))
}

// buildEnhancePrompt asks for the raw extraction to be turned into a
// structured study note.
func buildEnhancePrompt(topicName, topicInfo string) string {
	return fmt.Sprintf(`You are an educational content expert. You need to enhance the following information about the topic "%s".

Original information:
%s

Please enhance this information by:
1. Adding clear explanations for complex concepts
2. Organizing the content with appropriate headings and structure
3. Adding examples or analogies where helpful
4. Ensuring the information is accurate and complete

The enhanced content should be well-structured and easy to understand for a student studying this topic.
Format the content using Markdown syntax with appropriate headers, lists, and emphasis.`, topicName, topicInfo)
}

// buildClassifyPrompt constrains the model to a single-word label.
func buildClassifyPrompt(instruction string) string {
	return fmt.Sprintf(`Classify the following user instruction about a set of study notes.

Instruction: %q

Respond with exactly one word:
- "modification_request" if the user wants the notes changed, expanded, shortened, or reformatted
- "question" if the user is asking a question about the document or the notes

One word only. No explanations.`, instruction)
}

// buildRewritePrompt applies a modification instruction to one note.
func buildRewritePrompt(req RewriteRequest, maxDocChars int) string {
	return fmt.Sprintf(`You are revising a study note about the topic "%s" based on a user instruction.

USER INSTRUCTION:
%s

FULL DOCUMENT TEXT:
%s

ORIGINALLY EXTRACTED INFORMATION FOR THIS TOPIC:
%s

CURRENT NOTE CONTENT:
%s

Rewrite the note applying the user instruction. Keep everything the instruction does not ask you to change.
Respond with the complete revised note in Markdown. No explanations before or after.`,
		req.TopicName, req.Instruction,
		truncate(req.DocumentText, maxDocChars),
		req.Snippet, req.ExistingNote)
}

// buildAnswerPrompt answers a question over chat history, note
// summaries, and a bounded document excerpt.
func buildAnswerPrompt(req AnswerRequest, maxDocChars int) string {
	var history strings.Builder
	for _, entry := range req.ChatHistory {
		history.WriteString(formatChatEntry(entry))
		history.WriteString("\n")
	}

	return fmt.Sprintf(`You are a study assistant answering a question about a document and the study notes generated from it.

CONVERSATION SO FAR:
%s
STUDY NOTE SUMMARIES:
%s

DOCUMENT EXCERPT:
%s

QUESTION:
%s

Answer the question directly and concisely, citing the document content where relevant.`,
		history.String(), req.NoteSummaries,
		truncate(req.DocumentText, maxDocChars), req.Question)
}

// formatChatEntry renders one history line as "sender: message".
func formatChatEntry(entry core.ChatEntry) string {
	return fmt.Sprintf("%s: %s", entry.Sender, entry.Message)
}
