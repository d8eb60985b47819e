package pipeline

// Fragment is the text produced for one segment.
type Fragment struct {
	Segment Segment
	Text    string
	Failed  bool // Text is FailedPlaceholder
}

// Transcript collects fragments in segment order.
type Transcript struct {
	Fragments []Fragment
}
