package client

// These mirror the server's control-plane JSON payloads field-for-field;
// kept as a separate copy rather than a shared package since each side
// only ever needs to encode what it sends and decode what it receives.

type capabilitiesMsg struct {
	DisplayName string `json:"display_name"`
	ColorMode   string `json:"color_mode"`
	MaxWidth    int    `json:"max_width"`
	MaxHeight   int    `json:"max_height"`
	Audio       bool   `json:"audio"`
}

type pingMsg struct {
	Nonce uint64 `json:"nonce"`
}

type pongMsg struct {
	Nonce uint64 `json:"nonce"`
}

type clientJoinMsg struct {
	SlotID      uint32 `json:"slot_id"`
	DisplayName string `json:"display_name"`
}

type clientLeaveMsg struct {
	SlotID uint32 `json:"slot_id"`
}
