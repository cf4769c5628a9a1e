package usecase

import (
	"fmt"
	"strings"
)

func tweetPrompt(count int, title, text, link string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate %d engaging tweets about the following article.\n", count)
	b.WriteString("Each tweet must be under 240 characters, self-contained and must not include the link.\n")
	b.WriteString(`Return only a JSON array where each element is {"text": "...", "hashtags": ["tag1", "tag2"]}.` + "\n\n")
	if title != "" {
		fmt.Fprintf(&b, "Title: %s\n", title)
	}
	if link != "" {
		fmt.Fprintf(&b, "Source: %s\n", link)
	}
	fmt.Fprintf(&b, "Article:\n%s\n", text)
	return b.String()
}

func linkedInPrompt(title, text string) string {
	var b strings.Builder
	b.WriteString("Write a professional LinkedIn post about the following article.\n")
	b.WriteString("Keep it under 1300 characters, use short paragraphs and end with a question to invite discussion.\n")
	b.WriteString("Do not include the link and return only the post text.\n\n")
	if title != "" {
		fmt.Fprintf(&b, "Title: %s\n", title)
	}
	fmt.Fprintf(&b, "Article:\n%s\n", text)
	return b.String()
}

func followupPrompt(original string) string {
	return "Write one short follow-up tweet that continues the conversation started by this tweet. " +
		"Add a new angle or a question, stay under 240 characters and return only the tweet text.\n\n" +
		"Tweet: " + original + "\n"
}
