package pipeline

import "strings"

// FailedPlaceholder stands in for a segment the model returned no result for.
const FailedPlaceholder = "[Transcription Failed for Segment]"

// Add appends the text recognized for seg.
func (t *Transcript) Add(seg Segment, text string) {
	t.Fragments = append(t.Fragments, Fragment{Segment: seg, Text: text})
}

// AddFailed appends the placeholder for seg.
func (t *Transcript) AddFailed(seg Segment) {
	t.Fragments = append(t.Fragments, Fragment{Segment: seg, Text: FailedPlaceholder, Failed: true})
}

// Failed returns the number of placeholder fragments.
func (t *Transcript) Failed() int {
	n := 0
	for _, f := range t.Fragments {
		if f.Failed {
			n++
		}
	}
	return n
}

// Texts returns the fragment texts in order.
func (t *Transcript) Texts() []string {
	texts := make([]string, len(t.Fragments))
	for i, f := range t.Fragments {
		texts[i] = f.Text
	}
	return texts
}

// String returns the final transcript.
func (t *Transcript) String() string {
	return Join(t.Texts())
}

// Join concatenates fragments in order, separated by single spaces.
func Join(fragments []string) string {
	return strings.Join(fragments, " ")
}
