package transcript

import (
	"fmt"
	"strings"
	"time"
)

// DefaultLanguageCode is used when the service omits a detected language.
const DefaultLanguageCode = "en"

// Utterance is one diarized span of speech. Start and End are offsets from
// the beginning of the recording, in seconds.
type Utterance struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker int     `json:"speaker"`
}

type Transcript struct {
	LanguageCode string      `json:"language_code"`
	Utterances   []Utterance `json:"utterances"`
}

// FormatUtterance renders one utterance as
// "[H:MM:SS -> H:MM:SS] SPEAKERnn: text".
func FormatUtterance(u Utterance) string {
	return fmt.Sprintf("[%s -> %s] SPEAKER%02d: %s",
		formatOffset(u.Start), formatOffset(u.End), u.Speaker, strings.TrimSpace(u.Text))
}

// Render joins all utterances, one per line.
func Render(t Transcript) string {
	var b strings.Builder
	for _, u := range t.Utterances {
		b.WriteString(FormatUtterance(u))
		b.WriteByte('\n')
	}
	return b.String()
}

func formatOffset(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}
