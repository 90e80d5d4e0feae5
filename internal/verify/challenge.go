package verify

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/flemzord/warden/internal/platform"
)

// Question is the fixed challenge question.
const Question = "哪一个是水果？"

// CorrectIndex is the index of the right answer in AnswerOptions.
const CorrectIndex = 1

// AnswerOptions are the answer choices, shown on a single keyboard row.
var AnswerOptions = []string{"石头", "香蕉 🍌", "沙子", "铁锤"}

// DefaultName replaces an empty first name in chat messages.
const DefaultName = "新成员"

var callbackPattern = regexp.MustCompile(`^quiz_(\d+)_(\d+)$`)

// CallbackData encodes an answer button payload.
func CallbackData(userID int64, index int) string {
	return fmt.Sprintf("quiz_%d_%d", userID, index)
}

// ParseCallbackData decodes a payload built by CallbackData.
// ok is false for any other payload.
func ParseCallbackData(data string) (userID int64, index int, ok bool) {
	m := callbackPattern.FindStringSubmatch(data)
	if m == nil {
		return 0, 0, false
	}
	userID, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	index, err = strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, false
	}
	return userID, index, true
}

// ChallengeKeyboard builds the answer keyboard for userID.
func ChallengeKeyboard(userID int64) platform.Keyboard {
	row := make([]platform.Button, len(AnswerOptions))
	for i, opt := range AnswerOptions {
		row[i] = platform.Button{Text: opt, Data: CallbackData(userID, i)}
	}
	return platform.Keyboard{row}
}

// ChallengeText renders the Markdown challenge message.
func ChallengeText(name string, seconds int) string {
	return fmt.Sprintf("👋 欢迎 %s！请在 %d 秒内回答问题：\n\n*%s*",
		platform.EscapeMarkdown(displayName(name)), seconds, Question)
}

func displayName(name string) string {
	if name == "" {
		return DefaultName
	}
	return name
}
