package httpapi

//InjectResponse acknowledges an inject request
type InjectResponse struct {
	OK       bool   `json:"ok"`
	ClientID string `json:"client_id"`
}

//SnapshotResponse is an editor's buffer as reported over the bridge
type SnapshotResponse struct {
	ClientID  string  `json:"client_id"`
	Path      *string `json:"path"`
	Content   string  `json:"content"`
	Selection *string `json:"selection"`
}

//MultipleClientsResponse lists the connected editors when a request did not pick one
type MultipleClientsResponse struct {
	Error   string   `json:"error"`
	Clients []string `json:"clients"`
}
