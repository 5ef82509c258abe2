package api

import "github.com/DIvanCode/rwlatch/pkg/latch"

type LatchesResponse struct {
	Latches map[string]latch.Stats `json:"latches"`
}

type LatchResponse struct {
	Name  string      `json:"name"`
	Stats latch.Stats `json:"stats"`
}
