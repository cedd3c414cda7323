// Package rpcdebug renders decoded RPC envelopes as compact JSON for log
// lines and test failure messages -- never used on the wire, only for
// human-readable diagnostics, mirroring goridge's encodeJSON codec branch
// in _examples/l3dlp-sandbox-goridge/encoders.go.
package rpcdebug

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/logicmill/armi-go/pkg/errcode"
)

var api = jsoniter.ConfigCompatibleWithStandardLibrary

// Request is the loggable shape of a decoded request envelope.
type Request struct {
	RequestID uint64 `json:"request_id"`
	MethodID  uint32 `json:"method_id"`
	ChannelID uint64 `json:"channel_id"`
	Argc      int    `json:"argc"`
}

// Reply is the loggable shape of a decoded reply envelope.
type Reply struct {
	RequestID uint64     `json:"request_id"`
	OK        bool       `json:"ok"`
	Error     *ErrorCode `json:"error,omitempty"`
}

// ErrorCode is the loggable shape of an errcode.Code.
type ErrorCode struct {
	Category int   `json:"category"`
	Value    int32 `json:"value"`
}

// DumpRequest renders r as a compact JSON line.
func DumpRequest(r Request) string {
	b, err := api.Marshal(r)
	if err != nil {
		return "<rpcdebug: request marshal failed: " + err.Error() + ">"
	}
	return string(b)
}

// DumpReply renders r as a compact JSON line.
func DumpReply(r Reply) string {
	b, err := api.Marshal(r)
	if err != nil {
		return "<rpcdebug: reply marshal failed: " + err.Error() + ">"
	}
	return string(b)
}

// FromCode converts an errcode.Code into its loggable form.
func FromCode(c errcode.Code) *ErrorCode {
	return &ErrorCode{Category: c.Category, Value: c.Value}
}
