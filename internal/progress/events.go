package progress

// ProgressEvent is the payload for the "progress" event: the weighted
// sum of per-chunk bytes done over a file's total size.
type ProgressEvent struct {
	FileIndex int
	Percent   float64
	Loaded    int64
	Total     int64
}

// ChunkProgressEvent is the payload for the "chunkProgress" event.
type ChunkProgressEvent struct {
	FileIndex  int
	ChunkIndex int
	Progress   float64
}
