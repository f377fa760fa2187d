package types

type GazeMessage struct {
	Type string    `json:"type"`
	Data GazeEvent `json:"data"`
}

type StatusMessage struct {
	Type   string         `json:"type"`
	Status map[string]any `json:"status"`
}
