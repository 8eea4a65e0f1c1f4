package models

// RunStatistics is the sidecar JSON written next to every processed video.
//
// The field names are the on-disk contract shared with existing consumers:
//
//	jogadores_max        peak player count in a single frame
//	jogadores_media      mean player count over processed frames
//	bolas_detectadas     ball detections summed over all frames
//	total_frames         frames probed (after the fallback scan when needed)
//	frames_processados   frames read, detected and written
//	fps                  output frame rate, same as input
//	resolucao            "WxH"
//	tempo_processamento  loop wall time in seconds
//	falhas_deteccao      frames whose detector call failed and were written without detections
type RunStatistics struct {
	MaxPlayers        int     `json:"jogadores_max"`
	MeanPlayers       float64 `json:"jogadores_media"`
	BallsDetected     int     `json:"bolas_detectadas"`
	FramesProbed      int     `json:"total_frames"`
	FramesProcessed   int     `json:"frames_processados"`
	FPS               int     `json:"fps"`
	Resolution        string  `json:"resolucao"`
	ElapsedSeconds    float64 `json:"tempo_processamento"`
	DetectionFailures int     `json:"falhas_deteccao"`
}

// OutputArtifact is the pair of files produced by a completed run
type OutputArtifact struct {
	RunID      string        `json:"run_id"`
	VideoPath  string        `json:"video_path"`
	StatsPath  string        `json:"stats_path"`
	Statistics RunStatistics `json:"statistics"`
}
