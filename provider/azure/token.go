package azure

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
	goopenai "github.com/sashabaranov/go-openai"
)

// TokenCounter estimates token counts when a stream carries no usage report.
type TokenCounter interface {
	Count(model string, input string) (int, error)
}

type TiktokenCounter struct{}

func (TiktokenCounter) Count(model string, input string) (int, error) {
	encoding := "cl100k_base"
	if strings.Contains(model, "ada") {
		encoding = "r50k_base"
	} else if strings.Contains(model, "gpt-4o") {
		encoding = "o200k_base"
	}

	encoder, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return 0, err
	}

	return len(encoder.Encode(input, nil, nil)), nil
}

// countMessages follows the chat format overhead of three tokens per message
// plus three priming the reply.
func countMessages(counter TokenCounter, model string, messages []goopenai.ChatCompletionMessage) (int, error) {
	total := 3
	for _, m := range messages {
		total += 3

		content := m.Content
		for _, part := range m.MultiContent {
			if part.Type == goopenai.ChatMessagePartTypeText {
				content += part.Text
			}
		}

		for _, s := range []string{m.Role, content, m.Name} {
			if len(s) == 0 {
				continue
			}

			n, err := counter.Count(model, s)
			if err != nil {
				return 0, err
			}

			total += n
		}
	}

	return total, nil
}
