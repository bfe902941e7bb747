package cache

// Stream identifies which child-process stream an OutputChunk was captured
// from.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// OutputChunk is one piece of captured console output, in capture order, so
// that replay can faithfully interleave stdout and stderr the way they were
// originally produced (spec §3, §5).
type OutputChunk struct {
	Stream Stream `json:"stream"`
	Data   string `json:"data"`
}
