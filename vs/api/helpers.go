package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

func decode(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func urlValues(key, val string) url.Values {
	return url.Values{key: {val}}
}

func addr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}

func errMissing(msg string) error {
	return fmt.Errorf("vs/api: %s", msg)
}
