package cmn

import (
	jsoniter "github.com/json-iterator/go"
)

// JSON is the codec used for every wire and HTTP payload in the
// gateway, matching the teacher's choice of json-iterator over
// encoding/json.
var JSON = jsoniter.ConfigCompatibleWithStandardLibrary

func MustMarshal(v interface{}) []byte {
	b, err := JSON.Marshal(v)
	AssertNoErr(err)
	return b
}
