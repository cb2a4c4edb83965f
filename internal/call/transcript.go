package call

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// transcriptLog is the in-memory per-call transcript. Owned by the
// controller loop; never accessed from outside it.
type transcriptLog struct {
	entries []Utterance
}

func (l *transcriptLog) append(role Role, message string, at time.Time) Utterance {
	u := Utterance{
		ID:        uuid.NewString(),
		Role:      role,
		Message:   message,
		CreatedAt: at,
	}
	l.entries = append(l.entries, u)
	return u
}

func (l *transcriptLog) reset() {
	l.entries = nil
}

func (l *transcriptLog) snapshot() []Utterance {
	return append([]Utterance(nil), l.entries...)
}

// ExportTranscript renders entries as the plain-text download artifact:
// one "[localized timestamp] Role: message" block per entry, blank-line
// separated.
func ExportTranscript(entries []Utterance) string {
	blocks := make([]string, 0, len(entries))
	for _, u := range entries {
		blocks = append(blocks, fmt.Sprintf("[%s] %s: %s",
			u.CreatedAt.Local().Format("1/2/2006, 3:04:05 PM"),
			u.Role.DisplayName(),
			u.Message))
	}
	return strings.Join(blocks, "\n\n") + "\n"
}

// ExportFilename stamps the artifact with the current date.
func ExportFilename(now time.Time) string {
	return "transcript_" + now.Format("2006-01-02") + ".txt"
}
