package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
)

//InjectRequest asks a connected editor to write content
type InjectRequest struct {
	ClientID string `json:"client_id"`
	Content  string `json:"content"`
	Mode     string `json:"mode"`
	Position string `json:"position"`
}

func jsonDecode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("Could not decode JSON: %v", err)
	}
	return nil
}
