package value

import "github.com/bytedance/sonic"

// Marshal and Unmarshal centralize JSON codec choice for the value package
// and its callers (records are large, flat JSON objects fetched in bulk from
// the platform API, where sonic's throughput matters more than stdlib
// encoding/json's).
var (
	Marshal   = sonic.Marshal
	Unmarshal = sonic.Unmarshal
)
