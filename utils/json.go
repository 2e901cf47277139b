// utils/json.go
package utils

import (
	"encoding/json"
	"net/http"
)

// ParseJSON parses JSON request body
func ParseJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}
