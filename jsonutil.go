package main

import "encoding/json"

// mustJSON marshals v, which must always be one of this package's own
// message types and therefore never fails to encode.
func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
